package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/convention-desk/internal/utils"
)

func hashPINCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-pin [pin]",
		Short: "Print the bcrypt hash of a staff PIN for the staff directory",
		Long: `Print the bcrypt hash of a staff PIN.

The PIN is read from the argument or, when absent, from the first line of
stdin.  Paste the output into the pin_hash field of the staff directory.

Examples:
  convention-desk hash-pin 4821
  echo 4821 | convention-desk hash-pin`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, _ := cmd.Flags().GetInt("cost")
			var pin string
			if len(args) == 1 {
				pin = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read pin: %w", err)
				}
				pin = strings.TrimSpace(line)
			}
			hash, err := utils.HashPIN(pin, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().Int("cost", 10, "bcrypt cost")
	return cmd
}
