package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/backend"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/staging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"
)

type stepKind int

const (
	stepContinue stepKind = iota
	stepSuspend
	stepFail
	stepDone
	stepStale
)

// step is the result of one advance. A suspended step waits, then resumes
// with the continuation it carries.
type step struct {
	kind   stepKind
	wait   time.Duration
	resume func(ctx context.Context) step
	err    error
}

func proceed() step { return step{kind: stepContinue} }

func done() step { return step{kind: stepDone} }

func stale() step { return step{kind: stepStale} }

func failed(err error) step { return step{kind: stepFail, err: err} }

func suspend(wait time.Duration, resume func(ctx context.Context) step) step {
	return step{kind: stepSuspend, wait: wait, resume: resume}
}

// advance evaluates the phases in precedence order against the latest
// snapshot and performs the first piece of outstanding work.
func (o *Orchestrator) advance(ctx context.Context, gen uint64) step {
	s := o.snapshot(gen)
	if s == nil {
		return stale()
	}

	if s.Trust == nil {
		o.setPhase(gen, PhaseVerifyingTrust)
		return o.verifyTrust(ctx, gen, s)
	}

	for i := range s.Files {
		f := &s.Files[i]
		if !f.RecordUploaded {
			o.setPhase(gen, PhaseUploadingMetadataRecord)
			return o.uploadFileRecord(ctx, gen, s, i)
		}
		if !f.DataUploaded {
			o.setPhase(gen, PhaseUploadingFileData)
			return o.uploadFileData(ctx, gen, s, i)
		}
	}

	if !s.FilesConfirmed() {
		o.setPhase(gen, PhasePollingFiles)
		return o.poll(ctx, gen, s, pendingFileWrites(s), "files")
	}

	if s.Message == nil {
		return o.createMessage(gen)
	}
	if !s.Message.Uploaded {
		o.setPhase(gen, PhaseUploadingMessageRecord)
		return o.uploadMessage(ctx, gen, s)
	}
	if s.Message.Ack == nil {
		o.setPhase(gen, PhasePollingMessage)
		return o.poll(ctx, gen, s, pendingMessageWrites(s), "message")
	}
	return done()
}

func (o *Orchestrator) verifyTrust(ctx context.Context, gen uint64, s *Session) step {
	r := s.Request.Recipient
	res := o.deps.Verifier.Verify(ctx, r)

	if res.Usable() {
		key, err := res.Record.Key()
		if err != nil {
			return failed(err)
		}
		o.update(gen, func(s *Session) {
			s.Trust = &res
			s.RecipientKey = key
		})
		return proceed()
	}

	if res.Outcome == trust.OutcomeTampered {
		o.mu.Lock()
		o.blocked[r.UserID] = res.ComputedRoot
		o.mu.Unlock()
	}
	return failed(res.AsError())
}

func (o *Orchestrator) uploadFileRecord(ctx context.Context, gen uint64, s *Session, i int) step {
	f := &s.Files[i]
	src := s.Request.Files[i]

	creds, err := o.deps.Credentials.Get(ctx)
	if err != nil {
		return failed(err)
	}

	desc := Descriptor{Filename: src.Name, Size: src.Size, MIME: src.MIME, Thumbnail: len(src.Thumbnail) > 0}
	body, err := buildMetadataRecord(o.deps.Suite, s.Request.Recipient.UserID, s.RecipientKey, f.Key, desc, s.BurnDate)
	if err != nil {
		return failed(err)
	}

	key := staging.Path(o.opts.AppID, creds.AnonymousID, fileRecordTarget(f))
	if err := o.deps.Store.Put(ctx, creds.AWS(), o.opts.StagingBucket, key, body, nil); err != nil {
		return failed(err)
	}
	o.deps.Metrics.RecordStagedWrite(string(staging.ExtRecord), int64(len(body)))
	o.log.Debug(ctx, "metadata record staged", "file", i, "key", key)

	o.update(gen, func(s *Session) {
		s.Files[i].RecordUploaded = true
		s.Files[i].RecordIdentity = creds.AnonymousID
	})
	return proceed()
}

func (o *Orchestrator) uploadFileData(ctx context.Context, gen uint64, s *Session, i int) step {
	f := &s.Files[i]
	src := s.Request.Files[i]

	env, err := cryptox.NewEnvelope(o.deps.Suite, src.Data, src.Size, src.Thumbnail, len(f.Key))
	if err != nil {
		return failed(err)
	}
	if env.Size() > o.opts.MultipartCutover {
		return o.uploadMultipart(ctx, gen, s, i, env)
	}

	creds, err := o.deps.Credentials.Get(ctx)
	if err != nil {
		return failed(err)
	}
	body, err := env.Encrypt(o.deps.Suite, f.Key)
	if err != nil {
		return failed(err)
	}

	key := staging.Path(o.opts.AppID, creds.AnonymousID, fileDataTarget(f))
	progress := func(fraction float64) {
		o.update(gen, func(s *Session) { s.Files[i].UnipartProgress = fraction })
	}
	if err := o.deps.Store.Put(ctx, creds.AWS(), o.opts.StagingBucket, key, body, progress); err != nil {
		return failed(err)
	}
	o.deps.Metrics.RecordStagedWrite(string(staging.ExtData), int64(len(body)))
	o.log.Info(ctx, "file data staged", "file", i, "size", units.HumanSize(float64(len(body))))

	o.update(gen, func(s *Session) {
		s.Files[i].DataUploaded = true
		s.Files[i].DataIdentity = creds.AnonymousID
		s.Files[i].UnipartProgress = 1
	})
	return proceed()
}

func (o *Orchestrator) uploadMultipart(ctx context.Context, gen uint64, s *Session, i int, env *cryptox.Envelope) step {
	f := &s.Files[i]

	if f.Multipart == nil {
		ms := newMultipartState(env.Size(), o.opts.NetworkProfile)
		o.log.Info(ctx, "multipart transfer planned", "file", i,
			"size", units.HumanSize(float64(env.Size())),
			"part_size", units.HumanSize(float64(ms.PartSize)),
			"parts", ms.NumParts, "concurrency", ms.Concurrency)
		o.update(gen, func(s *Session) { s.Files[i].Multipart = ms })
		return proceed()
	}
	ms := f.Multipart

	if !ms.Initialized() {
		creds, err := o.deps.Credentials.Get(ctx)
		if err != nil {
			return failed(err)
		}
		key := staging.Path(o.opts.AppID, creds.AnonymousID, fileDataTarget(f))
		uploadID, err := o.deps.Store.CreateMultipart(ctx, creds.AWS(), o.opts.StagingBucket, key)
		if err != nil {
			return failed(err)
		}
		o.update(gen, func(s *Session) {
			if m := s.Files[i].Multipart; m != nil {
				m.Key = key
				m.UploadID = uploadID
				s.Files[i].DataIdentity = creds.AnonymousID
			}
		})
		return proceed()
	}

	if !ms.ReadyToComplete() {
		return o.uploadParts(ctx, gen, i, env)
	}

	res, err := o.deps.Backend.CompleteMultipart(ctx, backend.CompleteRequest{
		Bucket:      o.opts.StagingBucket,
		StagingPath: ms.Key,
		UploadID:    ms.UploadID,
		Parts:       ms.OrderedTokens(),
	})
	if err != nil {
		return failed(err)
	}
	o.deps.Metrics.RecordStagedWrite(string(staging.ExtData), 0)
	o.log.Info(ctx, "file data staged", "file", i, "parts", ms.NumParts, "duplicate", res.Duplicate)

	o.update(gen, func(s *Session) { s.Files[i].DataUploaded = true })
	return proceed()
}

// uploadParts keeps up to Concurrency parts in flight until every part holds
// a token or one part fails.
func (o *Orchestrator) uploadParts(ctx context.Context, gen uint64, i int, env *cryptox.Envelope) step {
	s := o.snapshot(gen)
	if s == nil {
		return stale()
	}
	ms := s.Files[i].Multipart
	key := s.Files[i].Key

	// The upload id and object key stay fixed; parts are signed by whichever
	// identity is current.
	creds, err := o.deps.Credentials.Get(ctx)
	if err != nil {
		return failed(err)
	}
	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{}, ms.NumParts)

	for gctx.Err() == nil {
		s := o.snapshot(gen)
		if s == nil || s.Files[i].Multipart == nil {
			break
		}
		cur := s.Files[i].Multipart
		if cur.ReadyToComplete() {
			break
		}

		next := cur.NextParts()
		if len(next) == 0 {
			if cur.InFlight() == 0 {
				break
			}
			select {
			case <-finished:
			case <-gctx.Done():
			}
			continue
		}

		for _, idx := range next {
			o.update(gen, func(s *Session) {
				if m := s.Files[i].Multipart; m != nil {
					m.Progress[idx] = 0
				}
			})
			g.Go(func() error {
				defer func() {
					select {
					case finished <- struct{}{}:
					default:
					}
				}()
				return o.uploadPart(gctx, gen, creds.AWS(), i, idx, ms, key, env)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("%w: %v", common.ErrTransientNetwork, err))
	}
	return proceed()
}

func (o *Orchestrator) uploadPart(ctx context.Context, gen uint64, creds aws.Credentials, i, idx int, ms *MultipartState, key []byte, env *cryptox.Envelope) error {
	release := func() {
		o.update(gen, func(s *Session) {
			if m := s.Files[i].Multipart; m != nil {
				delete(m.Progress, idx)
			}
		})
	}

	off, n := ms.PartRange(idx, env.Size())
	body, err := env.EncryptRange(o.deps.Suite, key, off, n)
	if err != nil {
		release()
		return err
	}

	progress := func(fraction float64) {
		o.update(gen, func(s *Session) {
			if m := s.Files[i].Multipart; m != nil {
				if _, ok := m.Tokens[idx]; !ok {
					m.Progress[idx] = fraction
				}
			}
		})
	}
	etag, err := o.deps.Store.UploadPart(ctx, creds, o.opts.StagingBucket, ms.Key, ms.UploadID, int32(idx+1), body, progress)
	if err != nil {
		o.deps.Metrics.RecordPart(false, n)
		release()
		return err
	}
	o.deps.Metrics.RecordPart(true, n)
	o.log.Debug(ctx, "part uploaded", "file", i, "part", idx, "size", units.HumanSize(float64(n)))

	o.update(gen, func(s *Session) {
		if m := s.Files[i].Multipart; m != nil {
			m.Tokens[idx] = etag
			m.Progress[idx] = 1
		}
	})
	return nil
}

// poll runs one poll-stage iteration: give up, touch, or wait and poll.
func (o *Orchestrator) poll(ctx context.Context, gen uint64, s *Session, pending []pendingWrite, stage string) step {
	if len(pending) == 0 {
		return proceed()
	}
	if s.PollCount >= o.opts.GiveUpAttempts {
		return failed(fmt.Errorf("%w: no confirmation after %d polls", common.ErrResourceExhausted, s.PollCount))
	}

	if TouchDue(s.PollCount, s.TouchCount, o.opts.TouchModulus) {
		target := pending[s.TouchCount%len(pending)]
		creds, err := o.deps.Credentials.Get(ctx)
		if err != nil {
			return failed(err)
		}
		// Only the identity that staged an object may touch it.
		if creds.AnonymousID == target.identity {
			key := staging.TouchPath(o.opts.AppID, target.identity, target.target)
			if err := o.deps.Store.Put(ctx, creds.AWS(), o.opts.StagingBucket, key, nil, nil); err != nil {
				return failed(err)
			}
			o.deps.Metrics.RecordTouch()
			o.log.Debug(ctx, "staged object touched", "key", key, "poll_count", s.PollCount)
		} else {
			o.log.Debug(ctx, "touch skipped, identity rotated", "request_id", target.target.RequestID)
		}
		o.update(gen, func(s *Session) { s.TouchCount++ })
		return proceed()
	}

	return suspend(o.opts.Backoff(s.PollCount), func(ctx context.Context) step {
		reqs := make([]backend.PollRequest, len(pending))
		for j, p := range pending {
			reqs[j] = p.request()
		}

		replies, err := o.deps.Backend.Poll(ctx, reqs)
		o.deps.Metrics.RecordPoll(stage)

		var confirmed int
		var rejected error
		if !o.update(gen, func(s *Session) {
			s.PollCount++
			if err == nil {
				confirmed, rejected = applyPoll(s, pending, replies)
			}
		}) {
			return stale()
		}

		if err != nil {
			return failed(err)
		}
		if rejected != nil {
			return failed(rejected)
		}
		o.log.Debug(ctx, "poll finished", "stage", stage, "pending", len(pending), "confirmed", confirmed)
		return proceed()
	})
}

func (o *Orchestrator) createMessage(gen uint64) step {
	key, err := o.deps.Suite.RandomBytes(cryptox.KeyLen512)
	if err != nil {
		return failed(fmt.Errorf("%w: message key: %v", common.ErrLogicInvariant, err))
	}
	name, err := common.MakeRandHexString(16)
	if err != nil {
		return failed(fmt.Errorf("%w: message name: %v", common.ErrLogicInvariant, err))
	}

	o.update(gen, func(s *Session) {
		s.Message = &MessageTransfer{Key: key, RandomName: name, RequestID: staging.NewRequestID()}
	})
	return proceed()
}

func (o *Orchestrator) uploadMessage(ctx context.Context, gen uint64, s *Session) step {
	m := s.Message

	attachments := make([]Attachment, len(s.Files))
	for i := range s.Files {
		f := &s.Files[i]
		attachments[i] = Attachment{
			CloudPath:   staging.CloudPath(fileDataTarget(f)),
			CloudFileID: f.CloudFileID,
			Filename:    s.Request.Files[i].Name,
		}
	}

	body, err := buildMessageRecord(o.deps.Suite, s.Request.Recipient.UserID, s.RecipientKey, m.Key, s.Request.Message, attachments, s.BurnDate)
	if err != nil {
		return failed(err)
	}

	creds, err := o.deps.Credentials.Get(ctx)
	if err != nil {
		return failed(err)
	}
	key := staging.Path(o.opts.AppID, creds.AnonymousID, messageTarget(m))
	if err := o.deps.Store.Put(ctx, creds.AWS(), o.opts.StagingBucket, key, body, nil); err != nil {
		return failed(err)
	}
	o.deps.Metrics.RecordStagedWrite(string(staging.ExtRecord), int64(len(body)))
	o.log.Info(ctx, "message record staged", "attachments", len(attachments))

	o.update(gen, func(s *Session) {
		s.Message.Uploaded = true
		s.Message.Identity = creds.AnonymousID
	})
	return proceed()
}
