package session

import "context"

// Gate resolves a (session, user) pair to a role. Every query or mutation
// against session state goes through Check first.
//
// A user has access if they are the DM of the campaign, have a character
// linked to the campaign, or are a direct participant in the session.
type Gate struct {
	repo Repository
}

// NewGate creates a new access gate backed by the given repository.
func NewGate(repo Repository) *Gate {
	return &Gate{repo: repo}
}

// Check resolves the caller's role for the session.
// Returns ErrSessionNotFound if the session does not exist and ErrForbidden
// if it exists but the user has no access.
func (g *Gate) Check(ctx context.Context, sessionID, userID string) (*Access, error) {
	s, err := g.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	campaign, err := g.repo.GetCampaign(ctx, s.CampaignID)
	if err != nil {
		return nil, err
	}

	if campaign.DMID == userID {
		return &Access{Session: s, Role: RoleDM}, nil
	}

	hasCharacter, err := g.repo.HasCharacterInCampaign(ctx, s.CampaignID, userID)
	if err != nil {
		return nil, err
	}
	if hasCharacter {
		return &Access{Session: s, Role: RoleParticipant}, nil
	}

	isParticipant, err := g.repo.IsParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if isParticipant {
		return &Access{Session: s, Role: RoleParticipant}, nil
	}

	return nil, ErrForbidden
}
