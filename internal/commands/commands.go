package commands

import (
	"github.com/bwmarrin/discordgo"

	"go-antinuke-guard/internal/models"
)

func actionChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.AllActions))
	for _, a := range models.AllActions {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: a.Label(), Value: string(a)})
	}
	return choices
}

func punishmentChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.AllPunishments))
	for _, p := range models.AllPunishments {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: p.String(), Value: p.String()})
	}
	return choices
}

var listActions = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Add", Value: "add"},
	{Name: "Remove", Value: "remove"},
	{Name: "List", Value: "list"},
}

// Definitions returns the application commands to register.
func Definitions() []*discordgo.ApplicationCommand {
	minCount, minSeconds, minIncidents := 1.0, 1.0, 1.0
	adminOnly := int64(discordgo.PermissionAdministrator)
	toggleChoices := append([]*discordgo.ApplicationCommandOptionChoice{{Name: "All", Value: featureAll}}, actionChoices()...)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "antinuke",
			Description:              "AntiNuke protection system",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "setup",
					Description: "Create the log channel and quarantine role and enable protection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "toggle",
					Description: "Turn protection or a single feature on or off",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "feature", Description: "Feature to toggle", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: toggleChoices},
						{Name: "state", Description: "On or off", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
					},
				},
				{
					Name:        "limit",
					Description: "Set the limit for an action",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "action", Description: "Action to limit", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: actionChoices()},
						{Name: "count", Description: "Actions allowed in the window", Type: discordgo.ApplicationCommandOptionInteger, Required: true, MinValue: &minCount, MaxValue: models.MaxCount},
						{Name: "seconds", Description: "Window length in seconds", Type: discordgo.ApplicationCommandOptionInteger, Required: true, MinValue: &minSeconds, MaxValue: models.MaxWindow.Seconds()},
						{Name: "punishment", Description: "Punishment when exceeded", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: punishmentChoices()},
					},
				},
				{
					Name:        "whitelist",
					Description: "Manage whitelisted users and roles",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "type", Description: "User or role", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "User", Value: string(whitelistUsers)},
							{Name: "Role", Value: string(whitelistRoles)},
						}},
						{Name: "action", Description: "Add, remove or list", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: listActions},
						{Name: "target", Description: "User or role", Type: discordgo.ApplicationCommandOptionMentionable},
					},
				},
				{
					Name:        "extraowner",
					Description: "Manage extra owners",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "action", Description: "Add, remove or list", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: listActions},
						{Name: "user", Description: "User", Type: discordgo.ApplicationCommandOptionUser},
					},
				},
				{
					Name:        "settings",
					Description: "View settings",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "quarantine",
					Description: "Quarantine a member",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "user", Description: "Member to quarantine", Type: discordgo.ApplicationCommandOptionUser, Required: true},
						{Name: "reason", Description: "Reason", Type: discordgo.ApplicationCommandOptionString},
					},
				},
				{
					Name:        "unquarantine",
					Description: "Restore a quarantined member's roles",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "user", Description: "Member to restore", Type: discordgo.ApplicationCommandOptionUser, Required: true},
					},
				},
				{
					Name:        "incidents",
					Description: "Show recent protection incidents",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "limit", Description: "How many", Type: discordgo.ApplicationCommandOptionInteger, MinValue: &minIncidents, MaxValue: maxIncidents},
					},
				},
			},
		},
	}
}
