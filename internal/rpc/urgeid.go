package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nidhogg/demiurge/internal/chain"
)

type createProfileParams struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
}

type buildProfileParams struct {
	buildParams
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
}

type handleParams struct {
	Handle string `json:"handle"`
}

type buildHandleParams struct {
	buildParams
	Handle string `json:"handle"`
}

func (s *Server) registerUrgeID() {
	s.registerDev("urgeid_create", s.createProfile)
	s.register("urgeid_get", s.profile, "urgeid_getProfile")
	s.register("urgeid_getByHandle", s.profileByHandle)
	s.register("urgeid_getProgress", s.progress)
	s.register("urgeid_buildCreateTx", s.buildCreateProfile)
	s.register("urgeid_buildSetHandleTx", s.buildSetHandle)
}

func (s *Server) createProfile(ctx context.Context, raw json.RawMessage) (any, error) {
	var p createProfileParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	a, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return nil, invalidParams("display_name is required")
	}
	prof, err := s.node.DevCreateProfile(ctx, a, p.DisplayName, p.Bio)
	if err != nil {
		if errors.Is(err, chain.ErrProfileExists) {
			return nil, invalidParams("%v", err)
		}
		return nil, err
	}
	return profileView(prof), nil
}

// profile returns null when a has no profile.
func (s *Server) profile(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	prof, ok := s.node.Profile(a)
	if !ok {
		return nil, nil
	}
	return profileView(prof), nil
}

func (s *Server) profileByHandle(_ context.Context, raw json.RawMessage) (any, error) {
	var p handleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Handle) == "" {
		return nil, invalidParams("handle is required")
	}
	prof, ok := s.node.ProfileByHandle(p.Handle)
	if !ok {
		return nil, nil
	}
	return profileView(prof), nil
}

func (s *Server) progress(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	prog, err := s.node.Progress(a)
	if errors.Is(err, chain.ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return progressView(prog), nil
}

func (s *Server) buildCreateProfile(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildProfileParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return nil, invalidParams("display_name is required")
	}
	return s.build(p.buildParams, chain.ModuleUrgeID, chain.CallCreate, chain.CreateProfileParams{DisplayName: p.DisplayName, Bio: p.Bio})
}

func (s *Server) buildSetHandle(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildHandleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	handle, err := chain.NormalizeHandle(p.Handle)
	if err != nil {
		return nil, err
	}
	return s.build(p.buildParams, chain.ModuleUrgeID, chain.CallSetHandle, chain.SetHandleParams{Handle: handle})
}
