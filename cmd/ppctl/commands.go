package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mashtheking/PropertyPro-sub001/internal/session"
)

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string
	var remember bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.Identity.Login(cmd.Context(), email, passwordFrom(password), remember); err != nil {
				return err
			}
			id := c.session.Identity.Identity()
			c.printf("%s としてログインしました\n", id.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (or set PPCTL_PASSWORD)")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the session for longer")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(c *cli) *cobra.Command {
	var in session.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Password = passwordFrom(in.Password)
			if err := c.session.Identity.Register(cmd.Context(), in); err != nil {
				return err
			}
			c.printf("アカウントを作成しました: %s\n", c.session.Identity.Identity().Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (or set PPCTL_PASSWORD)")
	cmd.Flags().StringVar(&in.Username, "username", "", "display name")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session and forget the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.session.Identity.IsAuthenticated() {
				c.printf("ログインしていません\n")
				return nil
			}
			err := c.session.Identity.Logout(cmd.Context())
			c.printf("ログアウトしました\n")
			return err
		},
	}
}

func newProfileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "profile",
		Aliases: []string{"whoami"},
		Short:   "Show the signed-in profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			p := c.session.Profiles.Profile()
			if p == nil {
				if err := c.session.Profiles.Refresh(cmd.Context()); err != nil {
					return err
				}
				p = c.session.Profiles.Profile()
			}
			c.printf("email:        %s\n", p.Email)
			c.printf("username:     %s\n", p.Username)
			c.printf("full name:    %s\n", p.FullName)
			c.printf("premium:      %t\n", p.IsPremium)
			c.printf("subscription: %s\n", c.session.Subscription.State())
			c.printf("reward units: %d\n", p.RewardUnits)
			return nil
		},
	}
}

func newWatchAdCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-ad",
		Short: "Watch a rewarded ad to earn reward units",
		RunE: func(cmd *cobra.Command, args []string) error {
			before := c.session.Ledger.Balance()
			if _, err := c.session.Ledger.WatchAd(cmd.Context()); err != nil {
				return err
			}
			after := c.session.Ledger.Balance()
			c.printf("報酬を獲得しました: %d → %d\n", before, after)
			if c.session.Profiles.Stale() {
				c.printf("（残高の表示は最新でない可能性があります）\n")
			}
			return nil
		},
	}
}

func newSpendCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "spend <amount> <feature>",
		Short: "Spend reward units to unlock a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("amount must be an integer: %q", args[0])
			}
			if _, err := c.session.Ledger.Spend(cmd.Context(), amount, args[1]); err != nil {
				return err
			}
			c.printf("%s を解放しました（残高 %d）\n", args[1], c.session.Ledger.Balance())
			if until, ok := c.session.Ledger.UnlockedUntil(args[1]); ok {
				c.printf("有効期限: %s\n", until.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newRewardsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "Reward unit ledger",
	}

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List recent reward transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.currentToken()
			if err != nil {
				return err
			}
			entries, err := c.client.RewardHistory(cmd.Context(), token, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				c.printf("履歴はありません\n")
				return nil
			}
			for _, e := range entries {
				c.printf("%s  %+4d  残高 %4d  %s %s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Delta, e.BalanceAfter, e.Reason, e.FeatureName)
			}
			return nil
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.AddCommand(history)
	return cmd
}

func newUpgradeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <subscription-id>",
		Short: "Activate premium with an approved PayPal subscription id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.Subscription.Upgrade(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.printf("購読状態: %s\n", c.session.Subscription.State())
			return nil
		},
	}
}

func newCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the premium subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.session.Subscription.Cancel(cmd.Context())
			if session.IsCode(err, session.CodeNoActiveSubscription) {
				c.printf("解約できる購読がありません\n")
				return nil
			}
			if err != nil {
				return err
			}
			c.printf("購読状態: %s\n", c.session.Subscription.State())
			return nil
		},
	}
}

func newSubscriptionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "subscription",
		Short: "Show subscription status and billing dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			if err := c.session.Subscription.Refresh(cmd.Context()); err != nil {
				return err
			}
			c.printf("status:  %s\n", c.session.Subscription.State())
			c.printf("premium: %t\n", c.session.Subscription.IsPremium())
			d := c.session.Subscription.Details()
			if d == nil {
				return nil
			}
			c.printf("id:      %s\n", d.SubscriptionID)
			c.printf("plan:    %s\n", d.PlanID)
			if d.NextBillingTime != nil {
				c.printf("next billing: %s\n", d.NextBillingTime.Local().Format(time.DateOnly))
			}
			if d.LastPaymentTime != nil {
				c.printf("last payment: %s\n", d.LastPaymentTime.Local().Format(time.DateOnly))
			}
			return nil
		},
	}
}

// currentToken は復元済みセッションのトークンを返す。
func (c *cli) currentToken() (string, error) {
	if err := c.requireLogin(); err != nil {
		return "", err
	}
	token := c.session.Identity.Token()
	if token == "" {
		return "", errors.New("no session token")
	}
	return token, nil
}
