package auth

import (
	"github.com/Masterminds/semver/v3"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// HeaderVersion carries the client build version on every request.
const HeaderVersion = "x-version"

// VersionGuard rejects clients whose x-version header falls outside the
// configured semantic-version range.
type VersionGuard struct {
	constraint *semver.Constraints
	raw        string
}

// NewVersionGuard parses a constraint such as ">=1.0.0".
func NewVersionGuard(constraint string) (*VersionGuard, error) {
	parsed, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &VersionGuard{constraint: parsed, raw: constraint}, nil
}

// Handle enforces the version range on routes that opt in.
func (g *VersionGuard) Handle(c *fiber.Ctx) error {
	raw := c.Get(HeaderVersion)
	if err := g.Check(raw); err != nil {
		return err
	}
	return c.Next()
}

// Check validates a raw version string against the range.
func (g *VersionGuard) Check(raw string) error {
	if raw == "" {
		return apperrors.NewUnsupportedVersion(raw, g.raw)
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return apperrors.NewUnsupportedVersion(raw, g.raw)
	}
	if !g.constraint.Check(version) {
		return apperrors.NewUnsupportedVersion(raw, g.raw)
	}
	return nil
}
