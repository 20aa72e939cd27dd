package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentpress/bakerd/internal/domain"
)

type pgBakeStore struct {
	pool *pgxpool.Pool
}

// NewPgBakeStore returns a BakeStore backed by PostgreSQL.
func NewPgBakeStore(pool *pgxpool.Pool) BakeStore {
	return &pgBakeStore{pool: pool}
}

func (s *pgBakeStore) SetBakeState(ctx context.Context, moduleIdent int, state domain.BakeState, recipeID *int, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE modules
		SET stateid = (SELECT stateid FROM modulestates WHERE statename = $1),
		    recipe = $2,
		    state_message = NULLIF($3, '')
		WHERE module_ident = $4`,
		string(state), recipeID, message, moduleIdent,
	)
	if err != nil {
		return fmt.Errorf("set bake state %q for module %d: %w", state, moduleIdent, err)
	}
	return nil
}

func (s *pgBakeStore) RemoveDerivedContent(ctx context.Context, identHash string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM module_files
		WHERE module_ident = (
		        SELECT module_ident FROM modules
		        WHERE ident_hash(uuid, major_version, minor_version) = $1)
		  AND filename IN ('collection.baked.xhtml', 'collection.baked-metadata.json')`,
		identHash,
	)
	if err != nil {
		return fmt.Errorf("remove derived content for %q: %w", identHash, err)
	}
	return nil
}

func (s *pgBakeStore) RecordTaskAssociation(ctx context.Context, moduleIdent int, taskID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_baking_result_associations (module_ident, result_id)
		VALUES ($1, $2)`,
		moduleIdent, taskID,
	)
	if err != nil {
		return fmt.Errorf("record task association for module %d: %w", moduleIdent, err)
	}
	return nil
}

// ResolveRecipeCandidates derives the recipe pair in one query.
// Primary: the recipe file registered for the module's print style, else a
// module file named after the print style, else the module's ruleset.css.
// Fallback: the recipe of the latest successful bake of the same logical
// document, reported only when it differs from the primary.
func (s *pgBakeStore) ResolveRecipeCandidates(ctx context.Context, moduleIdent int) (domain.RecipeCandidates, error) {
	var c domain.RecipeCandidates
	err := s.pool.QueryRow(ctx, `
		SELECT coalesce(psr.fileid, mf.fileid, mf2.fileid),
		       CASE
		         WHEN lm.recipe != coalesce(psr.fileid, mf.fileid, mf2.fileid, 0)
		           THEN lm.recipe
		           ELSE NULL
		       END
		FROM modules m LEFT JOIN print_style_recipes psr
		                   ON m.print_style = psr.print_style
		               LEFT JOIN module_files mf
		                   ON m.module_ident = mf.module_ident
		                   AND m.print_style = mf.filename
		               LEFT JOIN module_files mf2
		                   ON m.module_ident = mf2.module_ident
		                   AND mf2.filename = 'ruleset.css'
		               LEFT JOIN latest_modules lm
		                   ON m.uuid = lm.uuid
		WHERE m.module_ident = $1`,
		moduleIdent,
	).Scan(&c.Primary, &c.Fallback)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecipeCandidates{}, fmt.Errorf("module %d: %w", moduleIdent, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RecipeCandidates{}, fmt.Errorf("resolve recipe candidates for module %d: %w", moduleIdent, err)
	}
	return c, nil
}

func (s *pgBakeStore) PublicationInfo(ctx context.Context, identHash string) (domain.PublicationInfo, error) {
	var info domain.PublicationInfo
	err := s.pool.QueryRow(ctx, `
		SELECT submitter, submitlog FROM modules
		WHERE ident_hash(uuid, major_version, minor_version) = $1`,
		identHash,
	).Scan(&info.Publisher, &info.Message)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublicationInfo{}, fmt.Errorf("version %q: %w", identHash, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PublicationInfo{}, fmt.Errorf("publication info for %q: %w", identHash, err)
	}
	return info, nil
}

// NotifyPendingPublications replays the post_publication channel for every
// module stuck in the post-publication state. The payload shape must stay
// in sync with the database trigger that emits live notifications.
func (s *pgBakeStore) NotifyPendingPublications(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		SELECT pg_notify('post_publication',
		                 '{"module_ident": '||
		                 module_ident||
		                 ', "ident_hash": "'||
		                 ident_hash(uuid, major_version, minor_version)||
		                 '", "timestamp": "'||
		                 CURRENT_TIMESTAMP||
		                 '"}')
		FROM modules
		WHERE stateid = (
		    SELECT stateid
		    FROM modulestates
		    WHERE statename = 'post-publication')`)
	if err != nil {
		return 0, fmt.Errorf("notify pending publications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
