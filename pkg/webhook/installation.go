package webhook

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

// handleInstallation reacts to the installation event: created/deleted/
// suspend/unsuspend all invalidate the cached App token for the
// installation, since there's no standalone Installation record in this
// pipeline's schema — the token cache is the only installation-scoped
// state it keeps.
func (s *Server) handleInstallation(ctx context.Context, e *gogithub.InstallationEvent) {
	installID := fmt.Sprintf("%d", e.GetInstallation().GetID())
	logrus.WithField("handler", "installation").
		WithField("action", e.GetAction()).
		WithField("installation_id", installID).
		Info("webhook: installation event")

	if s.tokens != nil {
		s.tokens.Invalidate(installID)
	}
}

// handleInstallationRepositories reacts to the installation_repositories
// event (repos added/removed from an installation's grant). The token
// cache is invalidated for the same reason as handleInstallation: an
// added/removed repo changes what the cached token is scoped to.
func (s *Server) handleInstallationRepositories(ctx context.Context, e *gogithub.InstallationRepositoriesEvent) {
	installID := fmt.Sprintf("%d", e.GetInstallation().GetID())
	logrus.WithField("handler", "installation_repositories").
		WithField("action", e.GetAction()).
		WithField("installation_id", installID).
		Info("webhook: installation_repositories event")

	if s.tokens != nil {
		s.tokens.Invalidate(installID)
	}
}
