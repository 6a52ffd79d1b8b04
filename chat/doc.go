// Package chat runs the bot's live chat sessions.
//
// A Manager keeps one Session per enabled room. Every reconcile pass re-reads
// the desired room set, opens sessions for new rooms and closes sessions for
// rooms that went away. Opening a session dials the platform transport, runs
// the best-effort join handshake, optionally announces the bot in chat and
// only then starts delivering messages.
//
// Each Session drains its inbound events on a single goroutine, so the
// Pipeline sees a room's messages in arrival order. The Pipeline applies the
// reply policy, records memory, composes a reply and writes the audit row.
//
// Transports:
//   - TwitchDialer: one go-twitch-irc client per room. The join handshake
//     checks the broadcaster through Helix and records a first-join marker.
//   - YouTubeDialer: polls the channel's active live chat through the Data
//     API. The join handshake subscribes the bot account to the channel.
package chat
