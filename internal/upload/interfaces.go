package upload

import (
	"context"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/compress"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/files"
)

// Storage stores a file and makes it viewable by link.
type Storage interface {
	UploadFile(ctx context.Context, file files.File, opts drive.UploadOptions) (*drive.UploadResult, error)
}

// Authenticator is the part of auth.Session the orchestrator depends on.
type Authenticator interface {
	IsAuthenticated() bool
	// Login starts a login without blocking. The outcome arrives through Subscribe.
	Login(ctx context.Context)
	Subscribe(l auth.Listener) (unsubscribe func())
	Invalidate(ctx context.Context)
}

// Compressor shrinks images before upload.
type Compressor interface {
	Compress(ctx context.Context, file files.File, opts compress.Options) (files.File, error)
}
