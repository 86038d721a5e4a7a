package mqtt

import "strings"

// Match reports whether topic matches filter using MQTT wildcard rules.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// LastSegment returns the part of topic after the last slash.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Join concatenates topic levels, ignoring trailing slashes of prefix.
func Join(prefix string, levels ...string) string {
	parts := append([]string{strings.TrimSuffix(prefix, "/")}, levels...)
	return strings.Join(parts, "/")
}
