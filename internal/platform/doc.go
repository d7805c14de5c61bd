// Package platform defines the gateway's external collaborators: the
// message delivery service that places bot output into user chats, the
// media service that stores uploads, and the realtime notifier. The
// gateway depends only on these interfaces; HTTP implementations and
// noop fallbacks are provided here and selected by config.
package platform
