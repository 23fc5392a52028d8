package sqlinline

const QSelectProviderKey = `--sql 5b0e7a94-2c1f-4d83-a6e9-71c4d2f08b35
select token
from integration_tokens
where provider = $1::text
  and btrim(token) <> ''
limit 1;
`

// QStoreProviderKey reports whether the row was created rather than rotated.
const QStoreProviderKey = `--sql e27d4c18-9a53-4b6f-8d0e-3f95a1c6b742
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties
        || excluded.properties
        || jsonb_build_object('rotations', coalesce((integration_tokens.properties->>'rotations')::int, 0) + 1),
    updated_at = now()
returning (xmax = 0) as created;
`
