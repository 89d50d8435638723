package precompile

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// ArchiveID is the key of the plain archive adapter.
const ArchiveID = "archive"

// ArchiveAdapter downloads the archive at source. config.type selects the format; it is
// derived from the URL when unset.
type ArchiveAdapter struct {
	downloader Downloader
}

func NewArchiveAdapter(downloader Downloader) *ArchiveAdapter {
	return &ArchiveAdapter{downloader: downloader}
}

func (a *ArchiveAdapter) ID() string { return ArchiveID }

func (a *ArchiveAdapter) TryPrecompiled(ctx context.Context, req Request) foundation.Outcome {
	source := req.replace(req.Source)
	if source == "" {
		return foundation.SoftFailure("no source URL", nil)
	}
	distType := req.configString("type")
	if distType == "" {
		distType = DistTypeFromURL(source)
	}
	if err := a.downloader.Download(ctx, Dist{Key: req.CacheKey, Type: distType, URL: source}, req.TargetDir); err != nil {
		slog.Debug("Archive download failed", logfields.Adapter(a.ID()), logfields.Package(req.Name),
			logfields.URL(redact(source)), logfields.Error(err))
		return foundation.SoftFailure("download failed", err)
	}
	return foundation.OK()
}
