// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package sync owns the client-side chat state and keeps it consistent with the
chat backend.

The Manager runs a single apply loop. Three sources feed it:

 1. Push events from the connection session (presence, messages, typing, receipts)
 2. User commands from the local API (open, send, search, group CRUD)
 3. Timer expiries from the typing controller and the search debouncer

Every mutation of the presence tracker, message reconciler, typing controller,
search debouncer and conversation roster happens on the loop goroutine, so
none of them need locks. Slow work (history fetches, directory loads, remote
search) runs on background goroutines that post their results back onto the
loop as closures.

After each applied step the Manager builds an immutable models.View, stores it
behind an atomic pointer and hands it to the ViewPublisher (the local
websocket hub).

Usage Example:

	mgr := sync.NewManager(self, backendClient, sess, sync.Options{})
	mgr.SetPublisher(hub)
	mgr.Attach()
	go mgr.Run(ctx)

	if err := mgr.OpenConversation(ctx, models.DirectKey(peerID)); err != nil {
	    var ferr *sync.FetchError
	    if errors.As(err, &ferr) {
	        // history unavailable, cached list untouched
	    }
	}
*/
package sync
