package network

import "sort"

// BroadcastResult holds the outcome of a broadcast per peer id. A nil error
// means the frame was written.
type BroadcastResult struct {
	Results map[string]error
}

func newBroadcastResult() BroadcastResult {
	return BroadcastResult{Results: make(map[string]error)}
}

func (r BroadcastResult) SuccessfulCount() int {
	n := 0
	for _, err := range r.Results {
		if err == nil {
			n++
		}
	}
	return n
}

func (r BroadcastResult) FailedCount() int {
	return len(r.Results) - r.SuccessfulCount()
}

// SuccessfulPeers returns the ids that received the message, sorted.
func (r BroadcastResult) SuccessfulPeers() []string {
	return r.peers(func(err error) bool { return err == nil })
}

// FailedPeers returns the ids whose send failed, sorted. They are no longer
// connected.
func (r BroadcastResult) FailedPeers() []string {
	return r.peers(func(err error) bool { return err != nil })
}

// IsCompleteSuccess is true when no send failed, including an empty broadcast.
func (r BroadcastResult) IsCompleteSuccess() bool {
	return r.FailedCount() == 0
}

// IsCompleteFailure is true when no send succeeded, including an empty broadcast.
func (r BroadcastResult) IsCompleteFailure() bool {
	return r.SuccessfulCount() == 0
}

func (r BroadcastResult) peers(match func(error) bool) []string {
	ids := make([]string, 0, len(r.Results))
	for id, err := range r.Results {
		if match(err) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
