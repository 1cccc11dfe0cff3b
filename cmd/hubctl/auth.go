package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/teacherhub/internal/store"
)

// credentialFlags はサインイン・サインアップのフラグ。
type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&f.password, "password", "", "パスワード")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func newSignInCmd(a *app) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "サインインする",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.store.SignIn(cmd.Context(), flags.email, flags.password)
			if errors.Is(err, store.ErrUnauthorized) {
				return errors.New("メールアドレスまたはパスワードが違います")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "サインインしました: %s (%s)\n", flags.email, roleLabel(a.store.Professor()))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newSignUpCmd(a *app) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "利用者を登録する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.SignUp(cmd.Context(), flags.email, flags.password); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "登録しました: %s\n", flags.email)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newSignOutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "サインアウトする",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "サインアウトしました")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "サインイン状態と投稿数を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadErr := a.store.Load(cmd.Context())

			fmt.Fprintf(a.out, "API:        %s\n", a.apiURL)
			if a.store.LoggedIn() {
				fmt.Fprintf(a.out, "サインイン: はい (%s)\n", roleLabel(a.store.Professor()))
			} else {
				fmt.Fprintln(a.out, "サインイン: いいえ")
			}
			if loadErr != nil {
				fmt.Fprintf(a.out, "投稿数:     取得できません (%v)\n", loadErr)
				return nil
			}
			fmt.Fprintf(a.out, "投稿数:     %d\n", len(a.store.Posts()))
			return nil
		},
	}
}

func roleLabel(professor bool) string {
	if professor {
		return "教師"
	}
	return "学生"
}
