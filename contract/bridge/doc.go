/*
Package bridge defines the contract between the notification handler and the host
notification service: the two inbound events, the decision command, and subscriptions.
Transports live under adapters/ and implement Bridge.
*/
package bridge
