/*
Package handler lets an application register the single delegate that decides how each
incoming notification is presented and is told whether the host accepted the decision.
It talks to the host notification service only through a bridge.Bridge.
*/
package handler
