package relay

// Source is the wire shape of the source property. Field presence selects
// the variant: an html field makes it an inline document, a uri field makes
// it a remote request, neither means blank.
type Source struct {
	HTML    *string           `json:"html,omitempty" yaml:"html,omitempty"`
	BaseURL *string           `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	URI     *string           `json:"uri,omitempty" yaml:"uri,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    *string           `json:"body,omitempty" yaml:"body,omitempty"`
}

type SourceKind int

const (
	SourceBlank SourceKind = iota
	SourceHTML
	SourceRemote
)

func (k SourceKind) String() string {
	switch k {
	case SourceHTML:
		return "html"
	case SourceRemote:
		return "remote"
	default:
		return "blank"
	}
}

// SourcePrecedence decides which variant wins when one update carries both
// html and uri. The historical behavior is HTMLFirst.
type SourcePrecedence int

const (
	HTMLFirst SourcePrecedence = iota
	RemoteFirst
)

// Kind resolves the active variant of s under the given precedence. A nil
// source is blank.
func (s *Source) Kind(precedence SourcePrecedence) SourceKind {
	if s == nil {
		return SourceBlank
	}
	switch precedence {
	case RemoteFirst:
		if s.URI != nil {
			return SourceRemote
		}
		if s.HTML != nil {
			return SourceHTML
		}
	default:
		if s.HTML != nil {
			return SourceHTML
		}
		if s.URI != nil {
			return SourceRemote
		}
	}
	return SourceBlank
}
