package service

import (
	"context"
	"sync"

	"github.com/jghoshh/habitual/backend/queue"
)

// fakeNotifier records published milestone messages.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []queue.MilestoneMessage
}

func (n *fakeNotifier) NotifyMilestone(_ context.Context, msg queue.MilestoneMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}
