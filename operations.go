package beacon

import (
	"context"

	"github.com/beaconlabs/beacon-sdk/auth"
	"github.com/beaconlabs/beacon-sdk/graph"
	"github.com/beaconlabs/beacon-sdk/metadata"
	"github.com/beaconlabs/beacon-sdk/storage"
	"github.com/beaconlabs/beacon-sdk/workflow"
)

// CreatePost publishes a text post as the given account, with optional media.
//
// Media upload is required: if it fails, the post is not published. Uploads
// are scoped to the signer's wallet so only it can mutate them.
func (c *Client) CreatePost(ctx context.Context, account, content string, media *storage.File) (*workflow.Result, error) {
	return c.submitTextPost(ctx, account, content, media)
}

// SendBeam publishes a beam — a text post the service rate-limits to one per
// account per day. The rate limit is enforced server-side and surfaces as a
// rejected publish.
func (c *Client) SendBeam(ctx context.Context, account, content string, media *storage.File) (*workflow.Result, error) {
	return c.submitTextPost(ctx, account, content, media)
}

func (c *Client) submitTextPost(ctx context.Context, account, content string, media *storage.File) (*workflow.Result, error) {
	var mediaType string
	if media != nil {
		mediaType = media.ContentType
	}

	return c.flow.Submit(ctx, workflow.Request{
		Login:            auth.AccountOwner(account, c.signer),
		Draft:            workflow.Draft{Content: content, Attachment: media},
		AttachmentPolicy: workflow.AttachmentRequired,
		UploadOptions:    []storage.UploadOption{storage.WithAccountACL(c.signer.Address())},
		BuildMetadata: func(draft workflow.Draft, attachmentURI string) (*metadata.Document, error) {
			if attachmentURI == "" {
				return metadata.TextOnly(draft.Content)
			}
			return metadata.TextOnly(draft.Content, metadata.Attachment{Item: attachmentURI, Type: mediaType})
		},
		Publish: c.publishPost,
	})
}

// CreateBeacon publishes a beacon: an embedded interactive scene with a text
// description. The scene document is uploaded first and the post metadata
// embeds its URI.
func (c *Client) CreateBeacon(ctx context.Context, account, description string, sceneHTML []byte) (*workflow.Result, error) {
	scene := &storage.File{
		Name:        "scene.html",
		ContentType: "text/html",
		Data:        sceneHTML,
	}

	return c.flow.Submit(ctx, workflow.Request{
		Login:            auth.AccountOwner(account, c.signer),
		Draft:            workflow.Draft{Content: description, Attachment: scene},
		AttachmentPolicy: workflow.AttachmentRequired,
		BuildMetadata: func(draft workflow.Draft, attachmentURI string) (*metadata.Document, error) {
			return metadata.Embed(attachmentURI, draft.Content)
		},
		Publish: c.publishPost,
	})
}

// UpdateProfile replaces the account's profile document. The picture upload
// is best-effort: if it fails, the profile is updated without a picture.
func (c *Client) UpdateProfile(ctx context.Context, account, name, bio string, picture *storage.File) (*workflow.Result, error) {
	return c.flow.Submit(ctx, workflow.Request{
		Login:            auth.AccountOwner(account, c.signer),
		Draft:            workflow.Draft{Attachment: picture},
		AttachmentPolicy: workflow.AttachmentBestEffort,
		BuildMetadata: func(_ workflow.Draft, attachmentURI string) (*metadata.Document, error) {
			return metadata.Account(name, bio, attachmentURI)
		},
		Publish: func(ctx context.Context, session *auth.Session, uri, _ string) (*graph.PublishResult, error) {
			return c.Graph.SetAccountMetadata(ctx, session, uri)
		},
	})
}

// CreateProfile creates a new account for the signer's wallet, claiming the
// given handle. The wallet logs in as an onboarding user since it has no
// account yet; the picture upload is best-effort.
func (c *Client) CreateProfile(ctx context.Context, handle, name, bio string, picture *storage.File) (*workflow.Result, error) {
	return c.flow.Submit(ctx, workflow.Request{
		Login:            auth.OnboardingUser(c.signer),
		Draft:            workflow.Draft{Attachment: picture},
		AttachmentPolicy: workflow.AttachmentBestEffort,
		BuildMetadata: func(_ workflow.Draft, attachmentURI string) (*metadata.Document, error) {
			return metadata.Account(name, bio, attachmentURI)
		},
		Publish: func(ctx context.Context, session *auth.Session, uri, _ string) (*graph.PublishResult, error) {
			return c.Graph.CreateAccountWithUsername(ctx, session, handle, uri)
		},
	})
}

func (c *Client) publishPost(ctx context.Context, session *auth.Session, uri, idempotencyKey string) (*graph.PublishResult, error) {
	return c.Graph.Publish(ctx, session, graph.PostRequest{
		ContentURI:     uri,
		IdempotencyKey: idempotencyKey,
	})
}
