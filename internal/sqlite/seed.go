package sqlite

import (
	"errors"
	"fmt"

	"github.com/loomworks/tapestry/pkg/types"
)

// SeedTemplates upserts a template catalog. Templates are matched by their
// live composite key: a match updates the stored row in place, anything else
// inserts a new one. Each template's instance prefix is provisioned with a
// floor recovered from identifiers already issued, so re-seeding an existing
// database never reuses a counter value. Returns counts of inserted and
// updated rows.
func (t *Tx) SeedTemplates(catalog []*types.Template) (inserted, updated int, err error) {
	for _, tmpl := range catalog {
		if tmpl.InstancePrefix == "" {
			return inserted, updated, fmt.Errorf("%w: template %q has no instance prefix",
				types.ErrInvalidData, tmpl.Name)
		}

		current, err := t.GetTemplateByCode(tmpl.Code())
		switch {
		case err == nil:
			seeded := *tmpl
			seeded.UUID = current.UUID
			seeded.EUID = current.EUID
			seeded.CreatedAt = current.CreatedAt
			seeded.UpdatedAt = current.UpdatedAt
			if err := t.UpdateTemplate(&seeded); err != nil {
				return inserted, updated, fmt.Errorf("updating template %s: %w", tmpl.Code(), err)
			}
			updated++
		case errors.Is(err, types.ErrTemplateNotFound):
			if err := t.InsertTemplate(tmpl); err != nil {
				return inserted, updated, fmt.Errorf("inserting template %s: %w", tmpl.Code(), err)
			}
			inserted++
		default:
			return inserted, updated, err
		}

		floor, err := t.provisionFloorFromInstances(tmpl.InstancePrefix)
		if err != nil {
			return inserted, updated, err
		}
		if err := t.ProvisionPrefix(tmpl.InstancePrefix, floor); err != nil {
			return inserted, updated, err
		}
	}
	return inserted, updated, nil
}
