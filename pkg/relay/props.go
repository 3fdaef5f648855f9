package relay

// Props is one declarative update batch. A nil field was absent from the
// batch and leaves the view's current value untouched. Setting Source marks
// the view dirty; the navigation itself waits for Commit.
type Props struct {
	JavaScriptEnabled  *bool   `json:"javaScriptEnabled,omitempty" yaml:"javaScriptEnabled,omitempty"`
	IndexedDBEnabled   *bool   `json:"indexedDbEnabled,omitempty" yaml:"indexedDbEnabled,omitempty"`
	MessagingEnabled   *bool   `json:"messagingEnabled,omitempty" yaml:"messagingEnabled,omitempty"`
	InjectedJavaScript *string `json:"injectedJavaScript,omitempty" yaml:"injectedJavaScript,omitempty"`
	Source             *Source `json:"source,omitempty" yaml:"source,omitempty"`
}

// BoolProp and StringProp build pointer-typed prop fields, mostly for tests
// and programmatic drivers.
func BoolProp(b bool) *bool       { return &b }
func StringProp(s string) *string { return &s }
