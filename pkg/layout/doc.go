/*
Package layout wraps rendered documentation fragments in the site's shared
page: navigation, main body, footer and styling.

The default templates are embedded in the binary. A deployment can replace
any of them by dropping a file of the same name ("page.tmpl.html",
"logo.part.html", "style.part.html") into the configured templates
directory and restarting or refreshing.
*/
package layout
