package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventcert/internal/verification"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode or decode certificate verification tokens",
	}

	var baseURL string
	encode := &cobra.Command{
		Use:   "encode <email> <event-id>",
		Short: "Print the verification token and link for a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := verification.Encode(args[0], args[1])
			fmt.Fprintln(cmd.OutOrStdout(), token)
			if baseURL != "" {
				fmt.Fprintln(cmd.OutOrStdout(), verification.URL(baseURL, token))
			}
			return nil
		},
	}
	encode.Flags().StringVar(&baseURL, "verify-base-url", "", "also print the verification link")

	decode := &cobra.Command{
		Use:   "decode <token>",
		Short: "Print the email and event id carried by a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, eventID, err := verification.Decode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "email:    %s\nevent id: %s\n", email, eventID)
			return nil
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}
