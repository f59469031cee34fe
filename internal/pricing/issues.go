package pricing

import (
	"sync"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/rs/zerolog/log"
)

// IssueLog collects non-fatal findings of a run in the order they were raised.
type IssueLog struct {
	mu     sync.Mutex
	issues []domain.Issue
}

func (l *IssueLog) Add(issue domain.Issue) {
	if l == nil {
		return
	}
	log.Warn().
		Str("kind", string(issue.Kind)).
		Str("city", issue.City).
		Str("product_id", issue.ProductID).
		Msg(issue.Detail)

	l.mu.Lock()
	l.issues = append(l.issues, issue)
	l.mu.Unlock()
}

func (l *IssueLog) Issues() []domain.Issue {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Issue(nil), l.issues...)
}
