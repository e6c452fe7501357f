// Package admin exposes the moderation actions of the subscription and
// rename workflows to platform administrators. Authentication is the
// upstream auth provider's job; this router only checks the resolved
// session for platform-admin privileges and forwards the review to the
// owning service.
package admin
