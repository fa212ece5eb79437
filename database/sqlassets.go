package sqlassets

import _ "embed"

//go:embed schema/control/tenants.sql
var ControlTenantsSQL string

//go:embed schema/tenant/0001_base.sql
var TenantBaseSQL string

//go:embed schema/tenant/0002_audit.sql
var TenantAuditSQL string
