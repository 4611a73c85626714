package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/bankline/internal/auth"
	"github.com/zulandar/bankline/internal/db"
	"github.com/zulandar/bankline/internal/escalation"
	"github.com/zulandar/bankline/internal/models"
)

func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "escalations",
		Aliases: []string{"esc"},
		Short:   "Review and answer escalated customer questions",
	}

	cmd.AddCommand(newEscalationsListCmd())
	cmd.AddCommand(newEscalationsAnswerCmd())
	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var answered bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or answered) questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscalationsList(cmd, answered)
		},
	}

	cmd.Flags().BoolVar(&answered, "answered", false, "list answered questions instead of pending ones")
	return cmd
}

func newEscalationsAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <id> <answer>",
		Short: "Answer a question and notify the customer by SMS",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscalationsAnswer(cmd, args[0], strings.Join(args[1:], " "))
		},
	}
}

// openEscalations connects to the configured database and returns an
// escalation store that texts answers through the configured SMS provider.
func openEscalations(cmd *cobra.Command) (*escalation.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { db.Close(gormDB) }

	sms, err := auth.NewSMSSender(context.Background(), cfg.Auth.SMS, log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	store, err := escalation.NewStore(escalation.StoreOpts{DB: gormDB, SMS: sms, Logger: log})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return store, closeDB, nil
}

func runEscalationsList(cmd *cobra.Command, answered bool) error {
	store, closeDB, err := openEscalations(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	var qs []models.UnansweredQuestion
	if answered {
		qs, err = store.ListAnswered(ctx)
	} else {
		qs, err = store.ListPending(ctx)
	}
	if err != nil {
		return err
	}
	printQuestions(cmd.OutOrStdout(), qs)
	return nil
}

func runEscalationsAnswer(cmd *cobra.Command, id, answer string) error {
	store, closeDB, err := openEscalations(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	q, err := store.Answer(context.Background(), id, answer)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Answered %s from %s\n", q.ID, q.MobileNo)
	return nil
}

func printQuestions(w io.Writer, qs []models.UnansweredQuestion) {
	if len(qs) == 0 {
		fmt.Fprintln(w, "No questions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMOBILE\tASKED\tQUESTION\tANSWER")
	for _, q := range qs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			q.ID, q.MobileNo, q.AskedAt.Format("2006-01-02 15:04"),
			oneLine(q.Question, 60), oneLine(q.AdminAnswer, 40))
	}
	tw.Flush()
}

// oneLine flattens s onto one line and truncates it to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
