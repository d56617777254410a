// Package repositories implements SQLite persistence for the self-hosted backend.
//
// Every row that belongs to a user is read and written with that user's id, so handlers cannot
// reach another account's data by accident.
//
// Key Implementations:
//   - [UserRepository] : accounts with case-insensitive email lookups, registered together with their profile
//   - [ProfileRepository] : public profile records keyed by user id
//   - [TokenRepository] : single-use refresh tokens with rotation and bulk revocation
//   - [MembershipRepository] : the my_list and liked_items tables, unique per (user, media id, media type)
//   - [ProgressRepository] : continue-watching rows, upserted on (user, media id, media type)
//
// Constraint violations are reported as [shared.ErrConflict] and missing rows as [shared.ErrNotFound].
package repositories
