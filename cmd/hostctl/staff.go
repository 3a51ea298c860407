package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

type staffInput struct {
	Email     string
	FullName  string
	Password  string
	Superuser bool
	Grants    []string
}

// createStaff создаёт активного сотрудника и выдаёт ему права.
// Команда выполняется от имени системы, поэтому права пишутся напрямую в хранилище.
func createStaff(ctx context.Context, st core.Store, in staffInput, now time.Time) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, errors.New("--email is required")
	}
	if err := password.Validate(in.Password, in.Password); err != nil {
		return nil, err
	}
	levels := make([]models.PermissionLevel, 0, len(in.Grants))
	for _, g := range in.Grants {
		level := models.PermissionLevel(strings.TrimSpace(g))
		if !level.Valid() {
			return nil, fmt.Errorf("unknown permission level %q", g)
		}
		levels = append(levels, level)
	}
	hash, err := password.GetHash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     in.FullName,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  in.Superuser,
		CreatedAt:    now,
	}
	err = st.RunInTx(ctx, func(ctx context.Context) error {
		if err := st.CreateUser(ctx, u); err != nil {
			return err
		}
		for _, level := range levels {
			if err := st.CreatePermission(ctx, &models.ApplicationPermission{
				ID:         uuid.NewString(),
				UserID:     u.ID,
				UserEmail:  u.Email,
				Permission: level,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (c *cli) createStaffCmd() *cobra.Command {
	var in staffInput
	cmd := &cobra.Command{
		Use:   "createstaff",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			app, err := core.Build(cmd.Context(), cfg, sl.New(cfg.Env, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer app.Close()

			u, err := createStaff(cmd.Context(), app.Store, in, app.Clock.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "created staff user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "staff email")
	cmd.Flags().StringVar(&in.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	cmd.Flags().BoolVar(&in.Superuser, "superuser", false, "bypass application permission checks")
	cmd.Flags().StringSliceVar(&in.Grants, "grant", nil, "permission levels to grant (view, review, manage)")
	return cmd
}
