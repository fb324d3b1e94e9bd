/*
Package rabbitmq provides a RabbitMQ bridge to the host notification service.
Inbound events are consumed from per-listener exclusive queues bound on a topic exchange,
decisions are published with publisher confirms, and the connection reconnects on its own.
Optional header propagation goes through a bridge.HeaderPropagator.
*/
package rabbitmq
