// Package workflow implements the content submission pipeline: authenticate,
// package content, submit the publish operation, and await on-chain indexing.
//
// One Workflow serves every kind of submission; call sites supply only the
// metadata builder and the publish operation. Stages run strictly in
// sequence, nothing is retried internally, and the first failure aborts the
// attempt with the stage it occurred in.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beaconlabs/beacon-sdk/auth"
	"github.com/beaconlabs/beacon-sdk/graph"
	"github.com/beaconlabs/beacon-sdk/metadata"
	"github.com/beaconlabs/beacon-sdk/signer"
	"github.com/beaconlabs/beacon-sdk/storage"
)

// DefaultConfirmTimeout bounds the wait for indexing confirmation.
const DefaultConfirmTimeout = 60 * time.Second

// SessionEstablisher authenticates one login request. *auth.Client satisfies it.
type SessionEstablisher interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.Session, error)
}

// Uploader stores attachments and metadata documents. *storage.Client
// satisfies it.
type Uploader interface {
	UploadFile(ctx context.Context, file *storage.File, opts ...storage.UploadOption) (*storage.Resource, error)
	UploadJSON(ctx context.Context, doc interface{}, opts ...storage.UploadOption) (*storage.Resource, error)
}

// ConfirmationWaiter blocks until a transaction is indexed or rejected.
// *graph.Client satisfies it.
type ConfirmationWaiter interface {
	WaitForTransaction(ctx context.Context, session *auth.Session, txHash string) error
}

// PublishFunc runs the publish operation for one submission, such as
// creating a post or updating account metadata. idempotencyKey is stable for
// the submission: a retried Submit carrying the same key presents the same
// value, so the service can deduplicate.
type PublishFunc func(ctx context.Context, session *auth.Session, contentURI, idempotencyKey string) (*graph.PublishResult, error)

// MetadataBuilder builds the metadata document for a draft. attachmentURI is
// empty when the draft has no attachment or a best-effort upload failed.
type MetadataBuilder func(draft Draft, attachmentURI string) (*metadata.Document, error)

// Draft is the user-entered content of one submission. It is read-only once
// Submit begins.
type Draft struct {
	Content    string
	Attachment *storage.File
}

// AttachmentPolicy decides what an attachment upload failure means for the
// submission. The policy is always explicit at the call site; the workflow
// never infers it.
type AttachmentPolicy uint8

const (
	// AttachmentRequired aborts the submission when the attachment upload
	// fails. Post media uses this.
	AttachmentRequired AttachmentPolicy = iota
	// AttachmentBestEffort continues without the attachment when its upload
	// fails. Profile pictures use this.
	AttachmentBestEffort
)

// Request describes one submission.
type Request struct {
	// Login authenticates the submission. Required.
	Login auth.LoginRequest
	// Draft is the content to submit.
	Draft Draft
	// BuildMetadata builds the metadata document. Required.
	BuildMetadata MetadataBuilder
	// Publish runs the publish operation. Required.
	Publish PublishFunc
	// AttachmentPolicy decides whether an attachment upload failure aborts.
	AttachmentPolicy AttachmentPolicy
	// UploadOptions apply to both the attachment and metadata uploads.
	UploadOptions []storage.UploadOption
	// IdempotencyKey deduplicates the publish operation. Leave empty to have
	// Submit mint a fresh key; after a *SubmitError with Broadcast set,
	// retry with the key the error carries so the service drops the
	// duplicate.
	IdempotencyKey string
}

// Result is the terminal outcome of a completed submission.
type Result struct {
	// TxHash is the broadcast transaction hash, empty when the service
	// finalized the operation without a caller-signed transaction.
	TxHash string
	// Indexed reports whether indexing confirmation was observed by polling
	// before returning.
	Indexed bool
	// Finalized reports that the service completed the operation itself: no
	// transaction was broadcast and no indexing wait took place.
	Finalized bool
}

// Workflow runs submissions. It holds no per-submission state; one instance
// can serve any number of sequential submissions.
//
// Concurrent submissions under the same account are not coordinated here and
// must be serialized by the caller if ordering matters.
type Workflow struct {
	sessions SessionEstablisher
	uploads  Uploader
	waiter   ConfirmationWaiter
	sender   signer.TransactionSender

	confirmTimeout time.Duration
	log            *zap.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithConfirmTimeout bounds the wait for indexing confirmation.
// Defaults to DefaultConfirmTimeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.confirmTimeout = d }
}

// WithLogger sets the logger for stage transitions. Defaults to a no-op
// logger.
func WithLogger(log *zap.Logger) Option {
	return func(w *Workflow) { w.log = log }
}

// New creates a Workflow over the given collaborators.
func New(sessions SessionEstablisher, uploads Uploader, waiter ConfirmationWaiter, sender signer.TransactionSender, opts ...Option) (*Workflow, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session establisher is required")
	}
	if uploads == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if waiter == nil {
		return nil, fmt.Errorf("confirmation waiter is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("transaction sender is required")
	}

	w := &Workflow{
		sessions:       sessions,
		uploads:        uploads,
		waiter:         waiter,
		sender:         sender,
		confirmTimeout: DefaultConfirmTimeout,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.confirmTimeout <= 0 {
		return nil, fmt.Errorf("confirm timeout must be positive")
	}
	return w, nil
}

// Submit runs one submission to its terminal outcome.
//
// On failure the returned error is a *Error carrying the stage that failed;
// errors.As reaches the underlying *auth.AuthError, *storage.UploadError,
// *SubmitError, or *graph.IndexingError, and errors.Is(err, ErrTimeout)
// identifies an abandoned confirmation wait. No stage has partial,
// irreversible side effects except a successfully broadcast transaction, so
// retrying a failed submission from scratch is safe unless the error is a
// *SubmitError with Broadcast set.
func (w *Workflow) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.BuildMetadata == nil {
		return nil, &Error{Stage: StageIdle, Err: fmt.Errorf("metadata builder is required")}
	}
	if req.Publish == nil {
		return nil, &Error{Stage: StageIdle, Err: fmt.Errorf("publish operation is required")}
	}

	// The key is minted once per submission, before anything can fail, so a
	// retry carrying it back presents the same key to the service.
	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	// 1. Authenticate.
	w.log.Debug("submission started", zap.String("stage", StageAuthenticating.String()))
	session, err := w.sessions.Login(ctx, req.Login)
	if err != nil {
		return nil, &Error{Stage: StageAuthenticating, Err: err}
	}

	// 2. Package content.
	contentURI, err := w.packageContent(ctx, req)
	if err != nil {
		return nil, &Error{Stage: StagePackaging, Err: err}
	}
	w.log.Debug("content packaged", zap.String("uri", contentURI))

	// 3. Submit the publish operation.
	publication, err := req.Publish(ctx, session, contentURI, idempotencyKey)
	if err != nil {
		return nil, &Error{Stage: StageSubmitting, Err: &SubmitError{IdempotencyKey: idempotencyKey, Err: err}}
	}
	if publication.Finalized {
		// Nothing to sign; the service completed the operation itself.
		w.log.Debug("publication finalized by service")
		return &Result{Finalized: true}, nil
	}

	if publication.Raw == nil {
		return nil, &Error{Stage: StageSubmitting, Err: &SubmitError{IdempotencyKey: idempotencyKey, Err: fmt.Errorf("publish result is neither finalized nor raw")}}
	}

	txReq, err := publication.Raw.ToTxRequest()
	if err != nil {
		return nil, &Error{Stage: StageSubmitting, Err: &SubmitError{IdempotencyKey: idempotencyKey, Err: err}}
	}
	hash, err := w.sender.SendTransaction(ctx, txReq)
	if err != nil {
		var broadcastErr *signer.BroadcastError
		if errors.As(err, &broadcastErr) {
			return nil, &Error{Stage: StageSubmitting, Err: &SubmitError{
				Broadcast:      true,
				TxHash:         broadcastErr.Hash.Hex(),
				IdempotencyKey: idempotencyKey,
				Err:            err,
			}}
		}
		return nil, &Error{Stage: StageSubmitting, Err: &SubmitError{IdempotencyKey: idempotencyKey, Err: err}}
	}
	w.log.Debug("transaction broadcast", zap.String("hash", hash.Hex()))

	// 4. Await indexing, bounded by the confirmation timeout.
	_, err = Await(ctx, w.confirmTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.waiter.WaitForTransaction(ctx, session, hash.Hex())
	})
	if err != nil {
		return nil, &Error{Stage: StageAwaitingConfirmation, Err: err}
	}

	w.log.Debug("transaction indexed", zap.String("hash", hash.Hex()))
	return &Result{TxHash: hash.Hex(), Indexed: true}, nil
}

// packageContent uploads the draft's attachment (honoring the attachment
// policy), builds the metadata document, and uploads it. It never uploads
// metadata referencing a failed attachment.
func (w *Workflow) packageContent(ctx context.Context, req Request) (string, error) {
	attachmentURI := ""
	if req.Draft.Attachment != nil {
		resource, err := w.uploads.UploadFile(ctx, req.Draft.Attachment, req.UploadOptions...)
		switch {
		case err == nil:
			attachmentURI = resource.URI
		case req.AttachmentPolicy == AttachmentBestEffort:
			w.log.Warn("attachment upload failed, continuing without it", zap.Error(err))
		default:
			return "", err
		}
	}

	doc, err := req.BuildMetadata(req.Draft, attachmentURI)
	if err != nil {
		return "", err
	}

	resource, err := w.uploads.UploadJSON(ctx, doc, req.UploadOptions...)
	if err != nil {
		return "", err
	}
	return resource.URI, nil
}
