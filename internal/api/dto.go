package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treeservice"
)

var (
	kindRule      = validation.In(string(tree.KindInternal), string(tree.KindData), string(tree.KindURL))
	placementRule = validation.By(func(v any) error {
		s, _ := v.(string)
		_, err := tree.ParsePlacement(s)
		return err
	})
	contentTypeRule = validation.By(func(v any) error {
		s, _ := v.(string)
		_, err := tree.ParseContentType(s)
		return err
	})
)

// InitTreeRequest is the request body for creating a tree.
type InitTreeRequest struct {
	Category string `json:"category" example:"local"`
	Name     string `json:"name" example:"mind"`
	Icon     string `json:"icon,omitempty"`
}

// InsertNodeRequest is the request body for inserting a node next to or
// below the anchor in the URL.
type InsertNodeRequest struct {
	Placement   string `json:"placement" example:"last"`
	Text        string `json:"text" example:"do this" validate:"required"`
	Icon        string `json:"icon,omitempty"`
	Kind        string `json:"kind,omitempty" example:"internal"`
	Link        string `json:"link,omitempty"`
	File        string `json:"file,omitempty"`
	ContentType string `json:"content_type,omitempty" example:"md"`
}

// Validate checks the request shape; tree rules are enforced by the engine.
func (r InsertNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Placement, placementRule),
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Kind, kindRule),
		validation.Field(&r.Link, validation.When(r.Kind == string(tree.KindURL), validation.Required)),
		validation.Field(&r.ContentType, contentTypeRule),
	)
}

func (r InsertNodeRequest) toService(anchor string) treeservice.InsertRequest {
	p, _ := tree.ParsePlacement(r.Placement)
	return treeservice.InsertRequest{
		Anchor:      anchor,
		Placement:   p,
		Text:        r.Text,
		Icon:        r.Icon,
		Kind:        tree.Kind(r.Kind),
		Link:        r.Link,
		File:        r.File,
		ContentType: contentType(r.ContentType),
	}
}

// contentType parses an already validated content type. Empty stays empty
// so the configured default applies.
func contentType(s string) tree.ContentType {
	if s == "" {
		return ""
	}
	ct, _ := tree.ParseContentType(s)
	return ct
}

// AttachmentBody sets or clears a node payload.
type AttachmentBody struct {
	Kind        string `json:"kind" example:"url" validate:"required"`
	File        string `json:"file,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Link        string `json:"link,omitempty"`
}

// Validate implements validation.Validatable.
func (a AttachmentBody) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Kind, validation.Required, kindRule),
		validation.Field(&a.Link, validation.When(a.Kind == string(tree.KindURL), validation.Required)),
		validation.Field(&a.ContentType, contentTypeRule),
	)
}

// PatchNodeRequest edits a node. Omitted fields are left unchanged.
type PatchNodeRequest struct {
	Text       *string         `json:"text,omitempty"`
	Icon       *string         `json:"icon,omitempty"`
	Expanded   *bool           `json:"expanded,omitempty"`
	Attachment *AttachmentBody `json:"attachment,omitempty"`
}

// Validate implements validation.Validatable.
func (r PatchNodeRequest) Validate() error {
	if r.Text == nil && r.Icon == nil && r.Expanded == nil && r.Attachment == nil {
		return validation.NewError("validation_empty_patch", "nothing to change")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.NilOrNotEmpty),
		validation.Field(&r.Attachment),
	)
}

func (r PatchNodeRequest) toService() treeservice.NodePatch {
	p := treeservice.NodePatch{Text: r.Text, Icon: r.Icon, Expanded: r.Expanded}
	if a := r.Attachment; a != nil {
		p.Attachment = &treeservice.AttachmentRequest{
			Kind:        tree.Kind(a.Kind),
			File:        a.File,
			ContentType: contentType(a.ContentType),
			Link:        a.Link,
		}
	}
	return p
}

// MoveNodeRequest moves the node at Path relative to the node at Dest.
type MoveNodeRequest struct {
	Path      string `json:"path" example:"/Tasks/do this" validate:"required"`
	Dest      string `json:"dest" example:"/Tasks/Done" validate:"required"`
	Placement string `json:"placement" example:"first"`
}

// Validate implements validation.Validatable.
func (r MoveNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Dest, validation.Required),
		validation.Field(&r.Placement, placementRule),
	)
}

// TreeListResponse wraps the trees reachable from a directory.
type TreeListResponse struct {
	Trees []treeservice.TreeInfo `json:"trees" validate:"required"`
}

// PathListResponse wraps a path listing.
type PathListResponse struct {
	Paths []string `json:"paths" validate:"required"`
}

// RemoveResponse reports how many nodes a delete removed.
type RemoveResponse struct {
	Removed int `json:"removed" example:"3" validate:"required"`
}

// ResolveResponse is the outcome of resolving interactive input.
type ResolveResponse struct {
	Cancelled bool   `json:"cancelled"`
	ID        uint64 `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
}
