// Package bridge exposes relays over HTTP and websockets.
//
// Ownership model:
//   - ViewManager owns view lifecycles. It allocates handles, builds a
//     control per view through the configured factory, attaches them to the
//     relay, and tears everything down on detach.
//   - Each view carries a ConnectionPool of websocket clients plus one
//     reader goroutine that subscribes to the view's event topic and mirrors
//     every event to the pool as {"wv":true,"event":...} frames.
//   - Router owns the HTTP surface (REST under /api/views, websocket under
//     /ws) and the backing stores; Server adds process lifecycle (event
//     router loop, signals, graceful shutdown).
//
// Transport is pluggable: by default events ride the in-process gochannel
// pub/sub, with Redis Streams switched in through the redis settings section.
package bridge
