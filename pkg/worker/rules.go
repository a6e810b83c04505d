package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/rules"
)

// ProcessRules evaluates the account's rules against the named messages,
// applies the combined mutation locally, and enqueues the matching remote
// jobs.  Re-running over an already processed message is a no-op, so the
// job is safe to retry.
func (w *Workers) ProcessRules(ctx context.Context, j *queue.Job) error {
	var p MessagesPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding rules payload: %v", mail.ErrDataQuality, err)
	}
	rs, err := w.store.Rules(ctx, j.AccountID)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if len(rs) == 0 {
		return nil
	}

	var markRead, star []MessageRef
	moves := make(map[string][]MessageRef)
	for _, id := range p.MessageIDs {
		e, err := w.store.GetEmail(ctx, j.AccountID, id)
		if err != nil {
			continue
		}
		m := rules.Evaluate(rs, e)
		if m == nil {
			continue
		}
		// Snapshot before ApplyLocal: a rule move rewrites FolderID.
		ref := RefOf(e)
		if err := w.store.ApplyLocal(ctx, j.AccountID, []string{id}, *m); err != nil {
			return fmt.Errorf("applying rule actions to %s: %w", id, err)
		}
		if m.SetRead != nil && *m.SetRead {
			markRead = append(markRead, ref)
		}
		for _, label := range m.AddLabels {
			if label == mail.LabelStarred {
				star = append(star, ref)
			}
		}
		if m.SetFolder != nil {
			moves[*m.SetFolder] = append(moves[*m.SetFolder], ref)
		}
	}

	w.enqueueFlagJob(ctx, j.AccountID, markRead, mail.FlagSeen)
	w.enqueueFlagJob(ctx, j.AccountID, star, mail.FlagFlagged)
	for dest, refs := range moves {
		mj, err := queue.New(queue.TypeMoveToTrash, j.AccountID, MovePayload{
			Messages: refs,
			Dest:     dest,
		})
		if err == nil {
			err = w.jobs.Enqueue(ctx, mj)
		}
		if err != nil {
			log.Error().Str("module", "worker").Str("account", j.AccountID).Err(err).
				Str("dest", dest).Msg("Failed to enqueue rule move")
		}
	}
	return nil
}

func (w *Workers) enqueueFlagJob(ctx context.Context, accountID string, refs []MessageRef, flag string) {
	if len(refs) == 0 {
		return
	}
	j, err := queue.New(queue.TypeUpdateFlags, accountID, FlagsPayload{
		Messages: refs,
		Add:      true,
		Flags:    []string{flag},
	})
	if err == nil {
		err = w.jobs.Enqueue(ctx, j)
	}
	if err != nil {
		log.Error().Str("module", "worker").Str("account", accountID).Err(err).
			Str("flag", flag).Msg("Failed to enqueue rule flag update")
	}
}

// AutoRespond sends the configured automatic reply to each new sender,
// at most once per sender per account.  The sender set is recorded
// atomically, so a retried job never double-replies.
func (w *Workers) AutoRespond(ctx context.Context, j *queue.Job) error {
	if w.cfg.AutoReply == "" {
		return nil
	}
	var p MessagesPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding autoresponder payload: %v", mail.ErrDataQuality, err)
	}
	a, err := w.store.Account(ctx, j.AccountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	for _, id := range p.MessageIDs {
		e, err := w.store.GetEmail(ctx, j.AccountID, id)
		if err != nil {
			continue
		}
		if e.SenderEmail == "" || e.SenderEmail == a.Address {
			continue
		}
		first, err := w.store.AutoReplied(ctx, j.AccountID, e.SenderEmail)
		if err != nil {
			return fmt.Errorf("recording auto-reply to %s: %w", e.SenderEmail, err)
		}
		if !first {
			continue
		}
		send, err := queue.New(queue.TypeSendEmail, j.AccountID, SendPayload{
			Outgoing: mail.Outgoing{
				AccountID: j.AccountID,
				From:      a.Address,
				To:        []string{e.SenderEmail},
				Subject:   "Re: " + e.Subject,
				Text:      w.cfg.AutoReply,
				InReplyTo: "<" + e.MessageID + ">",
			},
		})
		if err == nil {
			err = w.jobs.Enqueue(ctx, send)
		}
		if err != nil {
			log.Error().Str("module", "worker").Str("account", j.AccountID).Err(err).
				Msg("Failed to enqueue automatic reply")
		}
	}
	return nil
}
