package adapters

// Site is the locator profile of a marketplace. It is the only place that
// carries page structure.
type Site struct {
	Name string

	// Deck page.
	Title      Locator
	Author     Locator
	PriceField Locator

	// "More" menu sequence that switches the deck to the lowest prices.
	MoreMenu      Locator
	SetLowest     Locator
	ConfirmLowest Locator

	// Login flow.
	LoginLink     Locator
	CookieAccept  Locator
	UsernameField Locator
	PasswordField Locator
	SignIn        Locator
	LoggedIn      Locator

	// Affiliate (price source) preferences.
	AffiliateSettingsURL string
	CurrencyUp           Locator
	CurrencySave         Locator
	CurrencyMarker       string
}

// Moxfield returns the profile for moxfield.com deck pages priced in euro
// through Cardmarket.
func Moxfield() Site {
	return Site{
		Name: "moxfield",

		Title:      "#menu-deckname > span",
		Author:     "#userhover-popup-2 > a",
		PriceField: "#shoppingcart",

		MoreMenu: "#subheader-more > span",
		SetLowest: "body > div.dropdown-menu.show > div > div > " +
			"div.d-inline-block.dropdown-column-divider > a:nth-child(7)",
		ConfirmLowest: "body > div.modal.zoom.show.d-block.text-start > div > div > " +
			"div.modal-footer > button.btn-primary",

		LoginLink: "#js-reactroot > header > nav > div > div > " +
			"ul.navbar-nav.me-0 > li:nth-child(1) > a",
		CookieAccept: "#ncmp__tool > div > div > div.ncmp__banner-actions > " +
			"div.ncmp__banner-btns > button:nth-child(2)",
		UsernameField: "#username",
		PasswordField: "#password",
		SignIn: "#maincontent > div > div.flex-grow-1 > div > div.card.border-0 > " +
			"div > form > div:nth-child(3) > button",
		LoggedIn: "#mainmenu-user",

		AffiliateSettingsURL: "https://www.moxfield.com/account/settings/affiliates",
		CurrencyUp:           "#affiliate-control-cardmarket-up",
		CurrencySave: "#maincontent > div > div.row > div.col-lg-8.pe-lg-5.order-2.order-lg-1 > " +
			"form > div:nth-child(3) > button",
		CurrencyMarker: "€",
	}
}
