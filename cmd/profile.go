package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/profile"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/ui"
)

var (
	flagProfileFormat string
	flagGender        string
	flagPreference    string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change your matchmaking profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := ui.ParseFormat(flagProfileFormat)
		if err != nil {
			return err
		}
		store, err := profileStore()
		if err != nil {
			return err
		}
		p, err := store.LoadOrCreate()
		if err != nil {
			return newError("load profile", err)
		}
		return ui.ProfileTable(p, store.Path()).Write(os.Stdout, format)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change your gender or who you'd like to meet",
	Long: `Change profile fields. Only premium users get matched by preference;
for everyone else the preference is stored but matching stays "any".

Examples:
  omegle-clone profile set --gender female
  omegle-clone profile set --prefer male`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profileStore()
		if err != nil {
			return err
		}
		p, err := store.LoadOrCreate()
		if err != nil {
			return newError("load profile", err)
		}

		if cmd.Flags().Changed("gender") {
			if p.Gender, err = profile.ParseGender(flagGender); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("prefer") {
			if p.Preference, err = profile.ParsePreference(flagPreference); err != nil {
				return err
			}
		}

		if err := store.Save(p); err != nil {
			return newError("save profile", err)
		}
		if p.Preference != p.EffectivePreference() {
			ui.PrintWarning("Preference saved, but matching by preference needs premium.")
		}
		ui.PrintSuccessf("Profile saved to %s", store.Path())
		return nil
	},
}

func profileStore() (*profile.Store, error) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		return nil, err
	}
	return profile.NewStore(cfg.ProfilePath), nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	profileShowCmd.Flags().StringVarP(&flagProfileFormat, "format", "f", "", "Output format: styled, table, markdown or csv")
	profileSetCmd.Flags().StringVar(&flagGender, "gender", "", "male, female or other (empty to clear)")
	profileSetCmd.Flags().StringVar(&flagPreference, "prefer", "", "any, male or female")
}
