// cmd/client/cmd/password/list.go
package password

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/domain/vault"
)

var (
	listFolder    string
	listTag       string
	listFavorites bool
	listSearch    string
	listFormat    string
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список записей",
	Long: `Список записей хранилища.

Без фильтров показываются все записи. --folder показывает содержимое папки
вместе с подпапками, --tag и --favorites фильтруют записи, --search ищет
подстроку в названии, логине и URL.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		if err := types.Ready(cmd.Context(), app); err != nil {
			return err
		}

		var passwords []vault.Password
		switch {
		case listFolder != "":
			if err := app.OpenFolder(listFolder); err != nil {
				return err
			}
			listing, err := app.Listing()
			if err != nil {
				return err
			}
			fmt.Printf("Папка: %s\n", listing.Folder.Label)
			for _, f := range listing.Subfolders {
				fmt.Printf("  📁 %s %s\n", f.Label, dimmed(f.ID))
			}
			fmt.Println()
			passwords = listing.Passwords
		case listTag != "":
			passwords, err = app.PasswordsWithTag(listTag)
		case listFavorites:
			passwords, err = app.Favorites()
		case listSearch != "":
			passwords, err = app.Search(listSearch)
		default:
			passwords, err = app.Passwords()
		}
		if err != nil {
			return err
		}

		if listFormat == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(passwords)
		}
		printPasswords(passwords)
		return nil
	},
}

func init() {
	ListCmd.Flags().StringVar(&listFolder, "folder", "", "показать содержимое папки")
	ListCmd.Flags().StringVar(&listTag, "tag", "", "записи с тегом")
	ListCmd.Flags().BoolVar(&listFavorites, "favorites", false, "только избранные")
	ListCmd.Flags().StringVarP(&listSearch, "search", "q", "", "поиск по названию, логину и URL")
	ListCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "формат вывода (table, json)")
}
