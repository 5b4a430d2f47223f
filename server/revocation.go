package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arkadialabs/kv-oauth/storage"
)

// RevokeGrant deletes a grant and fans out to every token derived from it.
// Access token records and refresh token records share the
// {userID}:{grantID} key prefix, so the fan-out is two prefix scans; the
// refresh primary index is reconstructed from each record key's digest
// suffix so it dies with the record.
//
// Partial failures are collected rather than aborting: every key that can
// be deleted is deleted, and the joined error reports what was not.
func (s *Server) RevokeGrant(ctx context.Context, userID, grantID string) error {
	if userID == "" || grantID == "" {
		return fmt.Errorf("%s: user_id and grant_id are required", ErrorCodeInvalidRequest)
	}

	var errs []error
	deleted := 0

	if _, err := s.kv.Delete(ctx, grantKey(userID, grantID)); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete grant: %w", err))
	}

	tokenKeys, err := s.kv.List(ctx, tokenPrefix(userID, grantID))
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list access tokens: %w", err))
	}
	for _, key := range tokenKeys {
		ok, err := s.kv.Delete(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete access token %q: %w", safeTruncate(key, 24), err))
			continue
		}
		if ok {
			deleted++
		}
	}

	refreshKeys, err := s.kv.List(ctx, refreshRecordPrefix(userID, grantID))
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list refresh tokens: %w", err))
	}
	for _, key := range refreshKeys {
		ok, err := s.kv.Delete(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete refresh record %q: %w", safeTruncate(key, 24), err))
			continue
		}
		if ok {
			deleted++
		}

		// The record key ends in the refresh token digest, which is also
		// the primary index key. Delete it too; if this fails the index
		// dangles and resolves to not-found on the next refresh attempt.
		digest := key[strings.LastIndex(key, ":")+1:]
		if _, err := s.kv.Delete(ctx, "refresh:"+digest); err != nil {
			s.Logger.Warn("Failed to delete refresh index during revocation",
				"error", err)
		}
	}

	if s.Auditor != nil {
		s.Auditor.LogGrantRevoked(userID, "", grantID, deleted)
	}
	if s.Metrics != nil {
		s.Metrics.RecordGrantRevoked(ctx, deleted)
	}

	s.Logger.Info("Grant revoked",
		"grant_id", grantID,
		"tokens_deleted", deleted,
		"errors", len(errs))

	return errors.Join(errs...)
}

// RevokeToken revokes the grant behind a presented token string, accepting
// either an access token or a refresh token. Per RFC 7009 an unrecognized
// token is not an error; the caller responds 200 either way.
func (s *Server) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	// Access tokens carry their owning grant in the string shape.
	if parts := strings.Split(token, "."); len(parts) == 3 {
		props, err := s.ValidateToken(ctx, token)
		if err != nil {
			return err
		}
		if props == nil {
			return nil
		}
		return s.RevokeGrant(ctx, props.UserID, props.GrantID)
	}

	// Otherwise try it as a refresh token.
	idx, err := storage.GetJSON[refreshIndex](ctx, s.kv, refreshIndexKey(token))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to look up token for revocation: %w", err)
	}
	return s.RevokeGrant(ctx, idx.UserID, idx.GrantID)
}
