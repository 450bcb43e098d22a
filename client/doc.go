package client

// This package implements the STOMP session layer on top of transport and
// frame.
//
// - `Client` - brings a session up (CONNECT/CONNECTED), writes frames with
//              optional receipt synchronisation, reads frames preserving
//              wire order, and tears the session down.
// - `Stateful` - the producer/consumer state machine that decides which
//              STOMP verbs are legal at any moment and injects transaction
//              headers while a transaction is open.
// - `Subscriptions` - the registry of active subscriptions held by the
//              consumer states.
// - `Message` - a received frame plus the jms-map-json transformation.
//
// A session is a single cooperating flow of control: Client, parser,
// Connection and Stateful together form one logical actor. Concurrent
// callers against one session must serialise externally. Independent
// sessions only share the process-wide id generator.
//
// === Synchronous sends
//
// By default every send-like verb carries a generated receipt header and
// blocks until the broker's RECEIPT with the matching receipt-id arrives.
// Frames that arrive in the meantime are buffered and replayed, in order,
// by later reads. A RECEIPT with the wrong id is fatal to that send; no
// RECEIPT within the receipt wait raises MissingReceiptError. Note that a
// synchronous send always overwrites a caller-set receipt header; callers
// that manage their own receipts must send asynchronously.
//
// === Draining
//
// Unsubscribing the last subscription while frames are still buffered
// parks the session in a draining state: reads keep yielding the backlog
// (FIFO), and only when a read comes back empty does the session return to
// its producer state.
