package models

// Permission codes seeded into the catalog at bootstrap.
const (
	PermUsersView         = "users.view"
	PermUsersCreate       = "users.create"
	PermUsersEdit         = "users.edit"
	PermUsersDelete       = "users.delete"
	PermGroupsManage      = "groups.manage"
	PermPermissionsManage = "permissions.manage"
	PermPetsView          = "pets.view"
	PermPetsCreate        = "pets.create"
	PermPetsEdit          = "pets.edit"
	PermPetsDelete        = "pets.delete"
	PermQRGenerate        = "qr.generate"
	PermAuditView         = "audit.view"
)

// BootstrapCatalog lists the permissions seeded by migration. IDs are
// assigned at insert time.
var BootstrapCatalog = []Permission{
	{Code: PermUsersView, Name: "View users", Category: "users", Description: "List and inspect user accounts"},
	{Code: PermUsersCreate, Name: "Create users", Category: "users"},
	{Code: PermUsersEdit, Name: "Edit users", Category: "users"},
	{Code: PermUsersDelete, Name: "Delete users", Category: "users"},
	{Code: PermGroupsManage, Name: "Manage groups", Category: "groups", Description: "Create, edit and delete groups and their members"},
	{Code: PermPermissionsManage, Name: "Manage permissions", Category: "permissions", Description: "Edit the catalog and direct user grants"},
	{Code: PermPetsView, Name: "View pets", Category: "pets"},
	{Code: PermPetsCreate, Name: "Register pets", Category: "pets"},
	{Code: PermPetsEdit, Name: "Edit pets", Category: "pets"},
	{Code: PermPetsDelete, Name: "Delete pets", Category: "pets"},
	{Code: PermQRGenerate, Name: "Generate QR codes", Category: "qr"},
	{Code: PermAuditView, Name: "View audit log", Category: "audit"},
}
