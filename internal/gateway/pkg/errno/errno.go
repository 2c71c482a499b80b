// Package errno holds the domain sentinel errors shared by the gateway
// services. Handlers map these onto registered errorx codes.
package errno

import (
	"errors"
)

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrInviteNotFound       = errors.New("invite not found")
	ErrAPIKeyNotFound       = errors.New("api key not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrPartitionNotFound    = errors.New("partition not found")

	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateName  = errors.New("name already in use")
	ErrAlreadyMember  = errors.New("user is already a member")
	ErrLastOwner      = errors.New("tenant must keep at least one owner")
	ErrInviteInvalid  = errors.New("invite is expired, revoked or exhausted")
	ErrTenantCycle    = errors.New("tenant parent chain would form a cycle")

	ErrUnauthorized          = errors.New("invalid credentials")
	ErrTenantSuspended       = errors.New("tenant is suspended")
	ErrProviderMisconfigured = errors.New("provider configuration incomplete")
)
