package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/user"
)

// addUser updates or creates an active user.User, bypassing signup & KYC.
func (cli *commandLine) addUser(name, email, pwd, role string, isSubAdmin bool) error {
	ctx := context.Background()
	now := time.Now().UTC()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{Email: email, CreatedAt: now}
	}
	usr.Name = core.CleanString(name)
	usr.Role = role
	usr.IsSubAdmin = isSubAdmin && role == user.RoleAdmin
	usr.Status = user.StatusActive
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return err
}
