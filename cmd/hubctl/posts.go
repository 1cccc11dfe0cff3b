package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/teacherhub/internal/post"
	"github.com/nao1215/teacherhub/internal/store"
)

func newListCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "投稿の一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if query != "" {
				err = a.store.Search(cmd.Context(), query)
			} else {
				err = a.store.Load(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.printPosts(a.store.Posts())
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "タイトル・要約・本文で検索する")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "投稿を1件表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.Get(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("投稿 %s は見つかりません", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ID:     %s\n", p.ID)
			fmt.Fprintf(a.out, "日付:   %s\n", p.DisplayDate)
			fmt.Fprintf(a.out, "タイトル: %s\n", p.Title)
			fmt.Fprintf(a.out, "要約:   %s\n\n", p.Summary)
			fmt.Fprintln(a.out, p.Body)
			return nil
		},
	}
}

// postFlags は作成・更新で使う投稿のフラグ。
type postFlags struct {
	title   string
	summary string
	body    string
}

func (f *postFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "タイトル")
	cmd.Flags().StringVar(&f.summary, "summary", "", "要約")
	cmd.Flags().StringVar(&f.body, "body", "", "本文")
}

func (f *postFlags) input() post.Input {
	return post.Input{Title: f.title, Summary: f.summary, Body: f.body}
}

func newCreateCmd(a *app) *cobra.Command {
	var flags postFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "投稿を作成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			created, err := a.store.Create(cmd.Context(), flags.input())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "投稿を作成しました: %s\n", created.ID)
			return nil
		},
	}
	flags.register(cmd)
	for _, name := range []string{"title", "summary", "body"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var flags postFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "投稿を更新する",
		Long: `投稿を全置換で更新する。
指定しなかった項目は現在の値を引き継ぐ。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			in := flags.input()
			changed := cmd.Flags().Changed
			if !changed("title") || !changed("summary") || !changed("body") {
				current, err := a.store.Get(ctx, id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("投稿 %s は見つかりません", id)
				}
				if err != nil {
					return err
				}
				if !changed("title") {
					in.Title = current.Title
				}
				if !changed("summary") {
					in.Summary = current.Summary
				}
				if !changed("body") {
					in.Body = current.Body
				}
			}

			if err := a.store.Update(ctx, id, in); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "投稿を更新しました: %s\n", id)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "投稿を削除する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "投稿を削除しました: %s\n", args[0])
			return nil
		},
	}
}

// printPosts は投稿を1行ずつ表形式で出力する。
func (a *app) printPosts(posts []post.Post) error {
	if len(posts) == 0 {
		fmt.Fprintln(a.out, "投稿はありません")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t日付\tタイトル\t要約")
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.DisplayDate, p.Title, p.Summary)
	}
	return w.Flush()
}
