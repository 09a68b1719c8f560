// Storage backends for MyBusiness API credentials, so sessions survive process restarts.
//
// Includes an interface and implementations using in-process memory, a local state file, redis, and an SQL database (via gorm).
//
// [Persist] and [Resume] connect a [Store] to a [client.APIClient]: the former is a credential update callback which saves every new credential, and the latter seeds a client with a previously saved credential.
package credstore
