package active

import (
	"context"
	"errors"
	"fmt"

	"dedupe/internal/domain"
)

// StopReason tells why a labeling session ended.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopRequested StopReason = "stopped"
	StopLimit     StopReason = "limit"
	StopCancelled StopReason = "cancelled"
	StopLabeler   StopReason = "labeler_closed"
)

// Result describes one labeling session.
type Result struct {
	Session string
	Asked   int
	Added   int
	Reason  StopReason
	Total   int
}

// Label runs a labeling session against the labeler. The labeler runs in its
// own goroutine and only talks to the trainer through the query and answer
// channels. Whatever the session ends with, including cancellation and a
// labeler error, the judgments collected so far are persisted before return.
func (t *Trainer) Label(ctx context.Context, records domain.RecordSet, labeler Labeler) (res Result, err error) {
	if err := t.ensurePrepared(records); err != nil {
		return Result{}, err
	}
	res.Session = t.session
	before := len(t.judgments)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queries := make(chan Query)
	answers := make(chan Answer)
	done := make(chan error, 1)
	go func() { done <- labeler.Run(runCtx, queries, answers) }()

	var labelerErr error
	labelerDone := false
	defer func() {
		close(queries)
		cancel()
		if !labelerDone {
			labelerErr = <-done
		}
		if labelerErr != nil && !errors.Is(labelerErr, context.Canceled) && err == nil {
			err = fmt.Errorf("labeler: %w", labelerErr)
		}
		res.Added = len(t.judgments) - before
		res.Total = len(t.judgments)
		// flush even when ctx is already cancelled
		if perr := t.Persist(context.WithoutCancel(ctx), t.judgments); perr != nil {
			err = errors.Join(err, perr)
		}
		t.logger.Info().
			Str("session", res.Session).
			Int("asked", res.Asked).
			Int("added", res.Added).
			Str("reason", string(res.Reason)).
			Msg("labeling session ended")
	}()

	for seq := 0; ; seq++ {
		if t.opts.MaxQueries > 0 && res.Asked >= t.opts.MaxQueries {
			res.Reason = StopLimit
			return res, nil
		}
		pair, ok := t.SelectNextPair(records, t.judgments)
		if !ok {
			res.Reason = StopExhausted
			return res, nil
		}
		q := Query{
			Seq:      seq,
			Pair:     pair,
			Left:     records[pair.Left],
			Right:    records[pair.Right],
			Fields:   t.comparator.Fields(),
			Progress: t.progress(),
		}

		select {
		case queries <- q:
		case <-ctx.Done():
			res.Reason = StopCancelled
			return res, ctx.Err()
		case labelerErr = <-done:
			labelerDone = true
			if ctx.Err() != nil {
				res.Reason = StopCancelled
				return res, ctx.Err()
			}
			res.Reason = StopLabeler
			return res, nil
		}
		res.Asked++

		var a Answer
		select {
		case a = <-answers:
		case <-ctx.Done():
			res.Reason = StopCancelled
			return res, ctx.Err()
		case labelerErr = <-done:
			labelerDone = true
			if ctx.Err() != nil {
				res.Reason = StopCancelled
				return res, ctx.Err()
			}
			res.Reason = StopLabeler
			return res, nil
		}
		if a.Stop {
			res.Reason = StopRequested
			return res, nil
		}
		if a.Seq != q.Seq {
			return res, fmt.Errorf("labeler answered query %d, expected %d", a.Seq, q.Seq)
		}
		switch a.Label {
		case domain.LabelMatch, domain.LabelDistinct, domain.LabelUncertain:
		default:
			return res, fmt.Errorf("labeler sent unknown label %q", a.Label)
		}
		lp := t.RecordJudgment(pair, a.Label)
		t.logger.Debug().Str("left", string(lp.Left)).Str("right", string(lp.Right)).Str("label", string(lp.Label)).Msg("judgment recorded")
	}
}

func (t *Trainer) progress() Progress {
	matches, distincts, uncertain := countLabels(t.judgments)
	judged := make(map[domain.Pair]struct{}, len(t.judgments))
	for _, j := range t.judgments {
		judged[j.Key()] = struct{}{}
	}
	remaining := 0
	for _, p := range t.pool {
		if _, ok := judged[p]; !ok {
			remaining++
		}
	}
	return Progress{Matches: matches, Distincts: distincts, Uncertain: uncertain, Remaining: remaining}
}
