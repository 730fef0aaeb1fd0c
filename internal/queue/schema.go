package queue

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// Keys are namespaced so several facilities or test instances can share one
// Redis server. Each destination has one list per priority; consumers BLPOP
// the lists from highest to lowest priority.
//
// Key pattern: autoreduce:{namespace}:queue:{name}:p{priority}
// Channel pattern: autoreduce:{namespace}:queue:{name}:events

// DestinationName strips the STOMP "/queue/" or "/topic/" prefix from a destination.
func DestinationName(destination string) string {
	name := strings.TrimPrefix(destination, "/queue/")
	name = strings.TrimPrefix(name, "/topic/")
	return strings.Trim(name, "/")
}

// QueueKey returns the Redis list holding messages of one priority.
func QueueKey(namespace, destination string, priority int) string {
	return fmt.Sprintf("autoreduce:%s:queue:%s:p%d", namespace, DestinationName(destination), priority)
}

// QueueEventsChannel returns the Pub/Sub channel announcing new messages.
func QueueEventsChannel(namespace, destination string) string {
	return fmt.Sprintf("autoreduce:%s:queue:%s:events", namespace, DestinationName(destination))
}
