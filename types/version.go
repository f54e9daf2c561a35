package types

// Version is the canonical project version.
// The CLI, the wire contract and the notification payloads share this
// version; a manifest carrying a different major version is rejected.
const Version = "0.3.0"
