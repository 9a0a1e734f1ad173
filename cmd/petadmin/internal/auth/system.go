package auth

// SystemUserID is the well-known UUID of the seeded system user. Provisioning
// writes record it as granted_by / added_by / created_by.
const SystemUserID = "00000000-0000-0000-0000-000000000000"
