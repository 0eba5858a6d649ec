package nats

import (
	"strings"
)

// Topics stay in MQTT form everywhere outside this package. Levels map to
// subject tokens and wildcards to their NATS equivalents. Dots and whitespace
// inside a level would split or break a subject token, so they become
// underscores; that part of the mapping is one-way.
var (
	topicToSubject = strings.NewReplacer(
		"/", ".",
		"+", "*",
		"#", ">",
		".", "_",
		" ", "_",
		"\t", "_",
		"\r", "_",
		"\n", "_",
	)
	subjectToTopic = strings.NewReplacer(
		".", "/",
		"*", "+",
		">", "#",
	)
)

// ToNATSSubject maps an MQTT topic or filter to the subject used on the wire.
// Publish and Subscribe both go through it, so a topic always meets its own
// subscription.
func ToNATSSubject(topic string) string {
	return topicToSubject.Replace(topic)
}

// ToMQTTTopic maps a received subject back to MQTT form
func ToMQTTTopic(subject string) string {
	return subjectToTopic.Replace(subject)
}
