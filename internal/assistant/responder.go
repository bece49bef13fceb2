package assistant

import (
	"context"
	"fmt"
	"strings"
)

const (
	tipsPerAnswer = 5
	// predictions below this confidence are ignored
	minConfidence = 0.25

	fallbackIntro = "I couldn't find a specific answer, but here are some important tips:"
)

// Updates supplies short headlines for a hazard tag.
type Updates interface {
	Digest(ctx context.Context, tag string) []string
}

type Responder struct {
	classifier Classifier
	catalog    Catalog
	updates    Updates
}

func NewResponder(cl Classifier, c Catalog, u Updates) *Responder {
	if cl == nil {
		cl = NewKeywordClassifier(c)
	}
	return &Responder{classifier: cl, catalog: c, updates: u}
}

// Respond builds the chat answer for message.
func (r *Responder) Respond(ctx context.Context, message string) string {
	in, ok := r.topIntent(message)
	if !ok {
		return r.fallback(ctx)
	}

	var b strings.Builder
	b.WriteString("PREPAREDNESS TIPS:\n")
	for i, tip := range r.tips(in) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, tip)
	}
	if ups := r.digest(ctx, in.Tag); len(ups) > 0 {
		b.WriteString("\nLATEST UPDATES:\n")
		for i, u := range ups {
			fmt.Fprintf(&b, "%d. %s\n", i+1, u)
		}
	}
	return b.String()
}

func (r *Responder) topIntent(message string) (Intent, bool) {
	for _, p := range r.classifier.Classify(message) {
		if p.Confidence < minConfidence {
			continue
		}
		if in, ok := r.catalog.Lookup(p.Intent); ok {
			return in, true
		}
	}
	return Intent{}, false
}

// tips returns exactly tipsPerAnswer distinct tips: the intent's own
// responses first, each cut to two sentences, then catalog defaults.
func (r *Responder) tips(in Intent) []string {
	out := make([]string, 0, tipsPerAnswer)
	add := func(t string) {
		if t == "" || len(out) >= tipsPerAnswer {
			return
		}
		for _, have := range out {
			if have == t {
				return
			}
		}
		out = append(out, t)
	}
	for _, resp := range in.Responses {
		add(firstSentences(resp, 2))
	}
	for _, d := range r.catalog.Defaults {
		add(d)
	}
	return out
}

func (r *Responder) fallback(ctx context.Context) string {
	ups := r.digest(ctx, "general")
	lines := make([]string, 0, len(ups))
	for i, u := range ups {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, u))
	}
	return fallbackIntro + "\n\n" + strings.Join(lines, "\n")
}

func (r *Responder) digest(ctx context.Context, tag string) []string {
	if r.updates == nil {
		return nil
	}
	return r.updates.Digest(ctx, tag)
}

func firstSentences(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", ". ")
	var parts []string
	for p := range strings.SplitSeq(s, ". ") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, ". ")
}
