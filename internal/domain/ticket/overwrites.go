package ticket

type Category string

const (
	CategoryOpen   Category = "open"
	CategoryClosed Category = "closed"
)

type PrincipalKind uint8

const (
	PrincipalUser PrincipalKind = iota + 1
	PrincipalModerators
	PrincipalEveryone
)

// Principal is the subject of an overwrite. Moderators and Everyone are
// symbolic; the provisioner maps them to concrete role ids.
type Principal struct {
	Kind PrincipalKind
	ID   uint64
}

func User(id uint64) Principal {
	return Principal{Kind: PrincipalUser, ID: id}
}

var (
	Moderators = Principal{Kind: PrincipalModerators}
	Everyone   = Principal{Kind: PrincipalEveryone}
)

type Permission uint64

const (
	PermissionView Permission = 1 << iota
)

type Overwrite struct {
	Principal Principal
	Allow     Permission
	Deny      Permission
}

// OpenOverwrites grants view to the author, each participant and the
// moderator role, and hides the channel from everyone else.
func OpenOverwrites(author uint64, participants []uint64) []Overwrite {
	overwrites := make([]Overwrite, 0, len(participants)+3)
	overwrites = append(overwrites, Overwrite{Principal: User(author), Allow: PermissionView})
	for _, id := range participants {
		if id == author {
			continue
		}
		overwrites = append(overwrites, Overwrite{Principal: User(id), Allow: PermissionView})
	}
	return append(overwrites,
		Overwrite{Principal: Moderators, Allow: PermissionView},
		Overwrite{Principal: Everyone, Deny: PermissionView},
	)
}

// ClosedOverwrites leaves the channel visible to moderators only.
func ClosedOverwrites() []Overwrite {
	return []Overwrite{
		{Principal: Everyone, Deny: PermissionView},
		{Principal: Moderators, Allow: PermissionView},
	}
}
